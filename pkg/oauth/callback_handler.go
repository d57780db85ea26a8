package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/klokku/outlook-calendar/internal/rest"
	log "github.com/sirupsen/logrus"
)

const DefaultCallbackPath = "/api/microsoft-outlook-calendar"

const (
	msgNoCode  = "No code returned from Microsoft Graph Auth API"
	msgFailed  = "Unable to authorize Outlook Calendar, please start the linking again."
	msgSuccess = "Outlook Calendar has been successfully authorized! You can close this window now!"
	msgLinked  = "Outlook Calendar is already linked, nothing was changed."
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>Outlook Calendar</title></head>
<body><p>{{.}}</p></body>
</html>
`))

// SetupContinuation resumes application setup once the account is linked.
type SetupContinuation interface {
	Continue(ctx context.Context) error
}

type authRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type Handler struct {
	flow         *SetupFlow
	continuation SetupContinuation
}

func NewHandler(flow *SetupFlow, continuation SetupContinuation) *Handler {
	return &Handler{flow: flow, continuation: continuation}
}

// OAuthLogin returns the authorization URL the user has to open.
func (h *Handler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	authURL, err := h.flow.Start()
	if err != nil {
		var abort *SetupAbort
		if errors.As(err, &abort) && abort.Reason == AbortAlreadySetup {
			rest.WriteError(w, http.StatusConflict, "Calendar account is already linked", string(abort.Reason))
			return
		}
		log.Errorf("unable to start account linking: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to start account linking", "")
		return
	}

	w.WriteHeader(http.StatusOK)
	encodeErr := json.NewEncoder(w).Encode(authRedirect{RedirectUrl: authURL})
	if encodeErr != nil {
		http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
	}
}

// OAuthCallback receives the provider redirect. The response is always an
// HTML page with status 200; the message tells the user what happened.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if code == "" {
		if providerErr := r.FormValue("error"); providerErr != "" {
			log.Warnf("Authorization was not granted: %s %s", providerErr, r.FormValue("error_description"))
		}
		renderCallbackPage(w, msgNoCode)
		return
	}

	if _, err := h.flow.Complete(r.Context(), code, r.FormValue("state")); err != nil {
		var abort *SetupAbort
		if errors.As(err, &abort) && abort.Reason == AbortAlreadySetup {
			renderCallbackPage(w, msgLinked)
			return
		}
		log.Errorf("unable to complete account linking: %v", err)
		renderCallbackPage(w, msgFailed)
		return
	}

	if h.continuation != nil {
		go func() {
			if err := h.continuation.Continue(context.Background()); err != nil {
				log.Errorf("unable to continue setup after linking: %v", err)
			}
		}()
	}
	renderCallbackPage(w, msgSuccess)
}

func renderCallbackPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := callbackPage.Execute(w, message); err != nil {
		log.Errorf("unable to render callback page: %v", err)
	}
}
