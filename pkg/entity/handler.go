package entity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/outlook-calendar/internal/rest"
	"github.com/klokku/outlook-calendar/pkg/calendar"
	log "github.com/sirupsen/logrus"
)

type EventDTO struct {
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location"`
	AllDay      bool   `json:"allDay"`
}

type EntityDTO struct {
	Id            string    `json:"id"`
	Name          string    `json:"name"`
	CalendarId    string    `json:"calendarId"`
	State         string    `json:"state"`
	OffsetReached bool      `json:"offsetReached"`
	Event         *EventDTO `json:"event"`
	LastFetch     string    `json:"lastFetch,omitempty"`
}

type CalendarDTO struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Track bool   `json:"track"`
}

type Scanner interface {
	Scan(ctx context.Context) ([]calendar.Descriptor, error)
}

type Handler struct {
	manager *Manager
	scanner Scanner
}

func NewHandler(manager *Manager, scanner Scanner) *Handler {
	return &Handler{manager: manager, scanner: scanner}
}

func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	entities := h.manager.List()
	result := make([]EntityDTO, 0, len(entities))
	for _, e := range entities {
		result = append(result, snapshotToDTO(e.Snapshot()))
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	e, ok := h.entityFromPath(w, r)
	if !ok {
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snapshotToDTO(e.Snapshot())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	e, ok := h.entityFromPath(w, r)
	if !ok {
		return
	}

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid start, expected RFC3339 time", err.Error())
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid end, expected RFC3339 time", err.Error())
		return
	}
	if !end.After(start) {
		rest.WriteError(w, http.StatusBadRequest, "End must be after start", "")
		return
	}

	events, err := e.GetEvents(r.Context(), start, end)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	result := make([]EventDTO, 0, len(events))
	for _, event := range events {
		result = append(result, eventToDTO(event))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// Scan looks for calendars added to the account since the last scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	calendars, err := h.scanner.Scan(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	result := make([]CalendarDTO, 0, len(calendars))
	for _, c := range calendars {
		result = append(result, CalendarDTO{Id: c.Id, Name: c.Name, Track: c.Track})
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) entityFromPath(w http.ResponseWriter, r *http.Request) (*Entity, bool) {
	id := mux.Vars(r)["entityId"]
	e, ok := h.manager.Get(id)
	if !ok {
		log.Debugf("entity not found: %s", id)
		rest.WriteError(w, http.StatusNotFound, "Calendar entity not found", id)
		return nil, false
	}
	return e, true
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var upstream *calendar.UpstreamError
	if errors.As(err, &upstream) {
		rest.WriteError(w, http.StatusBadGateway, "Calendar provider request failed", upstream.Error())
		return
	}
	rest.WriteError(w, http.StatusInternalServerError, "Calendar request failed", err.Error())
}

func eventToDTO(event calendar.Event) EventDTO {
	return EventDTO{
		Description: event.Description,
		Start:       event.Start.Format(time.RFC3339),
		End:         event.End.Format(time.RFC3339),
		Location:    event.Location,
		AllDay:      event.AllDay,
	}
}

func snapshotToDTO(s Snapshot) EntityDTO {
	dto := EntityDTO{
		Id:            s.Id,
		Name:          s.Name,
		CalendarId:    s.CalId,
		State:         string(s.State),
		OffsetReached: s.OffsetReached,
	}
	if s.Event != nil {
		event := eventToDTO(*s.Event)
		dto.Event = &event
	}
	if !s.LastFetch.IsZero() {
		dto.LastFetch = s.LastFetch.Format(time.RFC3339)
	}
	return dto
}
