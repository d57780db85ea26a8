package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outlook_calendar"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultCached  = "cached"
)

var (
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "OAuth token refresh attempts by result.",
	}, []string{"result"})

	TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_exchanges_total",
		Help:      "Authorization code exchanges by result.",
	}, []string{"result"})

	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Next-event polls by calendar and result.",
	}, []string{"calendar", "result"})

	HTTPRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_retries_total",
		Help:      "Requests retried after a connection failure or a 5xx response.",
	})

	CalendarsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendars_discovered_total",
		Help:      "Calendars discovered and persisted by the registry scan.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
