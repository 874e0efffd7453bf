package model

import "time"

// Event is a scheduled meetup owned by exactly one group.
//
// GroupID is the foreign key and is never serialised; clients see the
// owning group through the nested Group field instead. Group is nil when
// the event is rendered inside its own group's detail.
type Event struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GroupID     int64     `json:"-"`
	Group       *Group    `json:"group,omitempty"`
	Attendees   []User    `json:"attendees"`
}

// EventInput is the request body for creating or updating an event.
// GroupID is honoured on create and ignored on update.
type EventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	GroupID     int64     `json:"groupId"`
}

// CalendarDates is a per-day histogram of events, keyed by "YYYY-MM-DD".
type CalendarDates struct {
	EventDates  map[string]int64 `json:"eventDates"`
	TotalEvents int64            `json:"totalEvents"`
}
