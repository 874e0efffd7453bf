package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

const (
	MaxEventTitleLength = 200

	MsgGroupNotFound    = "Group not found"
	MsgAlreadyAttending = "User is already attending this event"
	MsgNotAttending     = "User is not attending this event"
)

// EventService handles business logic for events and attendance.
type EventService struct {
	events repository.EventRepository
	groups repository.GroupRepository
	users  *UserService
	loc    *time.Location
	logger *slog.Logger
}

// NewEventService creates an EventService. loc is the zone used for
// calendar dates, both in filters and in the calendar histogram.
func NewEventService(
	events repository.EventRepository,
	groups repository.GroupRepository,
	users *UserService,
	loc *time.Location,
	logger *slog.Logger,
) *EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		events: events,
		groups: groups,
		users:  users,
		loc:    loc,
		logger: logger,
	}
}

// =========================================================================
// READS
// =========================================================================

// ListForUser returns the events the caller attends, soonest first.
func (s *EventService) ListForUser(ctx context.Context, id auth.Identity) ([]model.Event, error) {
	events, err := s.events.ListAttendingEvents(ctx, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing events of %s: %w", id.Subject, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// PageAll returns one page of all events, optionally from opts.Date on and
// filtered by title.
func (s *EventService) PageAll(ctx context.Context, opts ListOptions) (model.Page[model.Event], error) {
	req, err := pageRequest(opts, DefaultEventPageSize, s.loc)
	if err != nil {
		return model.Page[model.Event]{}, err
	}

	events, total, err := s.events.PageEvents(ctx, 0, req)
	if err != nil {
		return model.Page[model.Event]{}, fmt.Errorf("service/event: paging events: %w", err)
	}
	return model.NewPage(events, req.Page, req.Size, total), nil
}

// Search is a title search over all events. The date filter does not
// apply.
func (s *EventService) Search(ctx context.Context, query string, page, size int) (model.Page[model.Event], error) {
	return s.PageAll(ctx, ListOptions{Page: page, Size: size, Query: query})
}

// CalendarDates counts events per local calendar day.
//
// Days are cut in the configured zone, not UTC: an event at 01:00 UTC on
// the 2nd is an evening event on the 1st in Vancouver, and that is the day
// the calendar should mark.
func (s *EventService) CalendarDates(ctx context.Context) (*model.CalendarDates, error) {
	dates, err := s.events.EventDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/event: reading event dates: %w", err)
	}

	out := &model.CalendarDates{
		EventDates:  make(map[string]int64),
		TotalEvents: int64(len(dates)),
	}
	for _, d := range dates {
		out.EventDates[d.In(s.loc).Format(DateLayout)]++
	}
	return out, nil
}

// Get returns one event with its group and attendees.
func (s *EventService) Get(ctx context.Context, eventID int64) (*model.Event, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("service/event: fetching event %d: %w", eventID, err)
	}
	return event, nil
}

// =========================================================================
// WRITES
// =========================================================================

// Create schedules an event in a group the caller belongs to.
//
// A missing group or a caller outside the group is answered with
// apperror.ErrInvalidState (400 with a plain text reason) and no row is
// written.
func (s *EventService) Create(ctx context.Context, id auth.Identity, in model.EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateEvent(in); err != nil {
		return nil, err
	}

	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, err
	}

	if _, err := s.groups.GetGroup(ctx, in.GroupID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidState(MsgGroupNotFound)
		}
		return nil, fmt.Errorf("service/event: fetching group %d: %w", in.GroupID, err)
	}

	member, err := s.groups.IsMember(ctx, in.GroupID, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/event: checking membership of group %d: %w", in.GroupID, err)
	}
	if !member {
		return nil, apperror.InvalidState(MsgNotMember)
	}

	event := &model.Event{
		Date:        in.Date,
		Title:       in.Title,
		Description: in.Description,
		GroupID:     in.GroupID,
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("service/event: creating event: %w", err)
	}

	s.logger.Info("event created",
		slog.Int64("eventID", event.ID),
		slog.Int64("groupID", event.GroupID),
		slog.String("userID", id.Subject),
	)

	return s.Get(ctx, event.ID)
}

// Update overwrites an event's title, description and date. Only members
// of the owning group may edit it, and the event never changes group:
// in.GroupID is ignored.
func (s *EventService) Update(ctx context.Context, id auth.Identity, eventID int64, in model.EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, err
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("service/event: fetching event %d: %w", eventID, err)
	}

	member, err := s.groups.IsMember(ctx, event.GroupID, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/event: checking membership of group %d: %w", event.GroupID, err)
	}
	if !member {
		return nil, apperror.Forbidden("only members of the group can edit its events")
	}

	event.Title = in.Title
	event.Description = in.Description
	event.Date = in.Date
	if err := s.events.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("service/event: updating event %d: %w", eventID, err)
	}

	s.logger.Info("event updated", slog.Int64("eventID", eventID), slog.String("userID", id.Subject))
	return event, nil
}

// Delete removes an event and its attendance rows.
func (s *EventService) Delete(ctx context.Context, id auth.Identity, eventID int64) error {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return err
	}
	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("service/event: deleting event %d: %w", eventID, err)
	}
	s.logger.Info("event deleted", slog.Int64("eventID", eventID), slog.String("userID", id.Subject))
	return nil
}

// =========================================================================
// ATTENDANCE
// =========================================================================

// AttendResult reports the outcome of Attend. When AlreadyAttending is
// true, Event is nil and nothing changed.
type AttendResult struct {
	Event            *model.Event
	AlreadyAttending bool
}

// Attend adds the caller to the event's attendees.
func (s *EventService) Attend(ctx context.Context, id auth.Identity, eventID int64) (*AttendResult, error) {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, fmt.Errorf("service/event: fetching event %d: %w", eventID, err)
	}

	added, err := s.events.AddAttendee(ctx, eventID, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/event: attending event %d: %w", eventID, err)
	}
	if !added {
		return &AttendResult{AlreadyAttending: true}, nil
	}

	s.logger.Info("event attended", slog.Int64("eventID", eventID), slog.String("userID", id.Subject))

	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &AttendResult{Event: event}, nil
}

// Unattend removes the caller from the event's attendees.
func (s *EventService) Unattend(ctx context.Context, id auth.Identity, eventID int64) error {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return err
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return fmt.Errorf("service/event: fetching event %d: %w", eventID, err)
	}

	removed, err := s.events.RemoveAttendee(ctx, eventID, id.Subject)
	if err != nil {
		return fmt.Errorf("service/event: leaving event %d: %w", eventID, err)
	}
	if !removed {
		return apperror.InvalidState(MsgNotAttending)
	}

	s.logger.Info("event unattended", slog.Int64("eventID", eventID), slog.String("userID", id.Subject))
	return nil
}

func validateEvent(in model.EventInput) error {
	if in.Title == "" {
		return apperror.ValidationFailed("title", "event title is required")
	}
	if len(in.Title) > MaxEventTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("event title must be %d characters or less", MaxEventTitleLength))
	}
	if in.Date.IsZero() {
		return apperror.ValidationFailed("date", "event date is required")
	}
	return nil
}
