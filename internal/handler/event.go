package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/service"
)

// EventHandler serves the /api/events endpoints.
type EventHandler struct {
	events *service.EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// HandleListMine returns the events the caller attends.
//
// HTTP: GET /api/events
func (h *EventHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	events, err := h.events.ListForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandlePageAvailable returns one page of all events.
//
// HTTP: GET /api/events/available?page=0&size=20&date=2025-06-01&q=java
func (h *EventHandler) HandlePageAvailable(w http.ResponseWriter, r *http.Request) {
	page, err := h.events.PageAll(r.Context(), listOptions(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCalendarDates returns how many events fall on each day.
//
// HTTP: GET /api/events/calendar-dates
//
// RESPONSE FORMAT:
//
//	{"eventDates": {"2025-06-03": 4, "2025-06-10": 4}, "totalEvents": 8}
func (h *EventHandler) HandleCalendarDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.events.CalendarDates(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

// HandleSearch finds events by title.
//
// HTTP: GET /api/events/search?q=java&page=0&size=20
func (h *EventHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	page, err := h.events.Search(r.Context(),
		r.URL.Query().Get("q"),
		queryInt(r, "page", 0),
		queryInt(r, "size", 0),
	)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one event with its group and attendees.
//
// HTTP: GET /api/events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	event, err := h.events.Get(r.Context(), eventID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// HandleCreate schedules an event.
//
// HTTP: POST /api/events
// REQUEST BODY: {"title": "...", "description": "...", "date": "2025-06-03T18:30:00Z", "groupId": 7}
//
// A missing group or a caller outside the group is a 400 with a plain text
// reason, not a 404/403: the request body is what is wrong.
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var in model.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	event, err := h.events.Create(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/events/%d", event.ID))
	writeJSON(w, http.StatusCreated, event)
}

// HandleUpdate edits an event. Only members of its group may do so.
//
// HTTP: PUT /api/events/{id}
func (h *EventHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}

	var in model.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	event, err := h.events.Update(r.Context(), id, eventID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// HandleDelete removes an event.
//
// HTTP: DELETE /api/events/{id}
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.events.Delete(r.Context(), id, eventID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleAttend adds the caller to the event's attendees.
//
// HTTP: POST /api/events/{id}/attendees
func (h *EventHandler) HandleAttend(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.events.Attend(r.Context(), id, eventID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if res.AlreadyAttending {
		writeText(w, http.StatusOK, service.MsgAlreadyAttending)
		return
	}
	writeJSON(w, http.StatusOK, res.Event)
}

// HandleUnattend removes the caller from the event's attendees.
//
// HTTP: DELETE /api/events/{id}/attendees
func (h *EventHandler) HandleUnattend(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.events.Unattend(r.Context(), id, eventID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
