package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eventsphere/server/internal/api/middleware"
	"github.com/eventsphere/server/internal/api/problem"
	"github.com/eventsphere/server/internal/audit"
	"github.com/eventsphere/server/internal/domain/events"
	"github.com/eventsphere/server/internal/domain/ids"
)

type EventsHandler struct {
	Service *events.Service
	Audit   *audit.Recorder
	Env     string
}

func NewEventsHandler(service *events.Service, auditRec *audit.Recorder, env string) *EventsHandler {
	return &EventsHandler{Service: service, Audit: auditRec, Env: env}
}

type eventResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsActive    bool   `json:"is_active"`
}

type eventListResponse struct {
	Items []eventResponse `json:"items"`
}

// List handles GET /api/v1/events. Public; only active events are returned.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	active, err := h.Service.ListActive(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]eventResponse, 0, len(active))
	for _, event := range active {
		items = append(items, toEventResponse(event))
	}

	writeJSON(w, http.StatusOK, eventListResponse{Items: items})
}

type createEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Create handles POST /api/v1/events (manager-write).
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.Env)
		return
	}

	admission := middleware.AdmissionFromContext(r.Context())
	event, err := h.Service.Create(r.Context(), events.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedBy:   admission.Subject,
	})
	if err != nil {
		if errors.Is(err, events.ErrInvalidDates) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid event dates", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, toEventResponse(*event))
}

// Delete handles DELETE /api/v1/events/{id} (admin-write). Deactivation, not
// a hard delete.
func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ids.ValidateULID(id); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid event id", err, h.Env)
		return
	}

	actor := middleware.AdmissionFromContext(r.Context()).Subject
	if err := h.Service.Deactivate(r.Context(), id); err != nil {
		h.Audit.Failure("event.deactivate", actor, "event", id, err.Error())
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", nil, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	h.Audit.Success("event.deactivate", actor, "event", id)
	w.WriteHeader(http.StatusNoContent)
}

func toEventResponse(event events.Event) eventResponse {
	return eventResponse{
		ID:          event.ID,
		Name:        event.Name,
		Description: event.Description,
		StartTime:   event.StartTime.UTC().Format(time.RFC3339),
		EndTime:     event.EndTime.UTC().Format(time.RFC3339),
		IsActive:    event.IsActive,
	}
}
