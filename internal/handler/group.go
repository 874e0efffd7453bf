package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/service"
)

// GroupHandler serves the /api/groups endpoints.
//
// Every route here sits behind auth.RequireIdentity, so each handler can
// rely on an identity in the request context.
type GroupHandler struct {
	groups *service.GroupService
	logger *slog.Logger
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(groups *service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

// HandleListMine returns the caller's groups.
//
// HTTP: GET /api/groups
func (h *GroupHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	groups, err := h.groups.ListForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleListAvailable returns every group.
//
// HTTP: GET /api/groups/available
func (h *GroupHandler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleSummary returns every group with member and event counts.
//
// HTTP: GET /api/groups/summary
func (h *GroupHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.groups.Summaries(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// HandlePageAvailable returns one page of all groups, the caller's first.
//
// HTTP: GET /api/groups/available/paginated?page=0&size=12&q=java
func (h *GroupHandler) HandlePageAvailable(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	page, err := h.groups.PageAvailable(r.Context(), id, listOptions(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one group with its events and their attendees.
//
// HTTP: GET /api/groups/{id}
func (h *GroupHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.groups.Get(r.Context(), groupID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandlePageEvents returns one page of a group's upcoming events.
//
// HTTP: GET /api/groups/{id}/events/paginated?page=0&size=20&date=2025-06-01
func (h *GroupHandler) HandlePageEvents(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}
	page, err := h.groups.PageEvents(r.Context(), groupID, listOptions(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate creates a group, or adopts an existing one with the same
// name.
//
// HTTP: POST /api/groups
// REQUEST BODY: {"name": "Seattle JUG", "city": "Seattle", ...}
//
// STATUS CODES:
//   - 201 Created + Location header: a new group was inserted
//   - 200 OK: the name already existed and the caller now belongs to it
//   - 409 Conflict: the name belongs to somebody else's group
func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var in model.GroupInput
	if !decodeJSON(w, r, &in) {
		return
	}

	group, created, err := h.groups.Create(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if !created {
		writeJSON(w, http.StatusOK, group)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/groups/%d", group.ID))
	writeJSON(w, http.StatusCreated, group)
}

// HandleUpdate overwrites a group's descriptive fields.
//
// HTTP: PUT /api/groups/{id}
func (h *GroupHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	var in model.GroupInput
	if !decodeJSON(w, r, &in) {
		return
	}

	group, err := h.groups.Update(r.Context(), id, groupID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// HandleDelete removes a group with its events.
//
// HTTP: DELETE /api/groups/{id}
func (h *GroupHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), id, groupID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleJoin adds the caller to a group.
//
// HTTP: POST /api/groups/members/{id}
//
// Joining twice is not an error: the second call answers 200 with a plain
// text notice instead of the group.
func (h *GroupHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.groups.Join(r.Context(), id, groupID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if res.AlreadyMember {
		writeText(w, http.StatusOK, service.MsgAlreadyMember)
		return
	}
	writeJSON(w, http.StatusOK, res.Group)
}

// HandleLeave removes the caller from a group.
//
// HTTP: DELETE /api/groups/members/{id}
func (h *GroupHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.groups.Leave(r.Context(), id, groupID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// listOptions reads the shared paging and filter query parameters.
// Missing or malformed numbers fall back to the service defaults.
func listOptions(r *http.Request) service.ListOptions {
	q := r.URL.Query()
	return service.ListOptions{
		Page:  queryInt(r, "page", 0),
		Size:  queryInt(r, "size", 0),
		Date:  q.Get("date"),
		Query: q.Get("q"),
	}
}
