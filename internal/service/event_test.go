package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
)

var kickoff = time.Date(2030, 3, 4, 18, 30, 0, 0, time.UTC)

func TestCreateEvent(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")

	event, err := ts.events.Create(ctx, alice, model.EventInput{
		Title:       " Kickoff ",
		Description: "First meetup",
		Date:        kickoff,
		GroupID:     g.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if event.ID == 0 || event.Title != "Kickoff" {
		t.Errorf("event = %+v", event)
	}
	if event.Group == nil || event.Group.ID != g.ID {
		t.Errorf("event.Group = %+v", event.Group)
	}
	if event.Attendees == nil {
		t.Error("Attendees should be an empty slice, not nil")
	}
}

func TestCreateEvent_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		groupID func(g *model.Group) int64
		wantMsg string
	}{
		{"missing group", func(*model.Group) int64 { return 999 }, MsgGroupNotFound},
		{"caller not a member", func(g *model.Group) int64 { return g.ID }, MsgNotMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices(t)
			g := ts.mustCreateGroup(t, alice, "Seattle JUG")

			_, err := ts.events.Create(context.Background(), bob, model.EventInput{
				Title:   "Hijack",
				Date:    kickoff,
				GroupID: tt.groupID(g),
			})
			if !errors.Is(err, apperror.ErrInvalidState) {
				t.Fatalf("error = %v, want ErrInvalidState", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if len(ts.store.events) != 0 {
				t.Error("no event row should be written")
			}
		})
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	ts := newTestServices(t)
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")

	for _, in := range []model.EventInput{
		{Title: "", Date: kickoff, GroupID: g.ID},
		{Title: "No date", GroupID: g.ID},
	} {
		if _, err := ts.events.Create(context.Background(), alice, in); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Create(%+v) error = %v, want ErrValidation", in, err)
		}
	}
}

func TestUpdateEvent(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")
	other := ts.mustCreateGroup(t, bob, "Portland JUG")

	event, err := ts.events.Create(ctx, alice, model.EventInput{Title: "Kickoff", Date: kickoff, GroupID: g.ID})
	if err != nil {
		t.Fatal(err)
	}

	later := kickoff.Add(24 * time.Hour)
	updated, err := ts.events.Update(ctx, alice, event.ID, model.EventInput{
		Title:   "Kickoff (moved)",
		Date:    later,
		GroupID: other.ID,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "Kickoff (moved)" || !updated.Date.Equal(later) {
		t.Errorf("updated = %+v", updated)
	}
	if ts.store.events[event.ID].GroupID != g.ID {
		t.Error("an event must never change group")
	}

	_, err = ts.events.Update(ctx, bob, event.ID, model.EventInput{Title: "Mine now", Date: later})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-member Update() error = %v, want ErrForbidden", err)
	}

	_, err = ts.events.Update(ctx, alice, 999, model.EventInput{Title: "x", Date: later})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing Update() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteEvent(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")
	event, _ := ts.events.Create(ctx, alice, model.EventInput{Title: "Kickoff", Date: kickoff, GroupID: g.ID})

	if err := ts.events.Delete(ctx, alice, event.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ts.events.Get(ctx, event.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestAttendUnattend_RoundTrip(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")
	event, _ := ts.events.Create(ctx, alice, model.EventInput{Title: "Kickoff", Date: kickoff, GroupID: g.ID})

	res, err := ts.events.Attend(ctx, bob, event.ID)
	if err != nil {
		t.Fatalf("Attend() error = %v", err)
	}
	if res.AlreadyAttending || len(res.Event.Attendees) != 1 || res.Event.Attendees[0].ID != bob.Subject {
		t.Errorf("first attend = %+v", res)
	}

	res, err = ts.events.Attend(ctx, bob, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyAttending {
		t.Error("second attend should report already attending")
	}

	mine, err := ts.events.ListForUser(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Errorf("bob attends %d events, want 1", len(mine))
	}

	if err := ts.events.Unattend(ctx, bob, event.ID); err != nil {
		t.Fatalf("Unattend() error = %v", err)
	}
	err = ts.events.Unattend(ctx, bob, event.ID)
	if !errors.Is(err, apperror.ErrInvalidState) || err.Error() != MsgNotAttending {
		t.Errorf("second Unattend() error = %v, want %q", err, MsgNotAttending)
	}

	if _, err := ts.events.Attend(ctx, bob, 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Attend(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPageAllAndSearch(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	g := ts.mustCreateGroup(t, alice, "Seattle JUG")
	for i, title := range []string{"Java Streams", "Kotlin Coroutines", "JAVA Records"} {
		if _, err := ts.events.Create(ctx, alice, model.EventInput{
			Title:   title,
			Date:    kickoff.AddDate(0, 0, 7*i),
			GroupID: g.ID,
		}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := ts.events.PageAll(ctx, ListOptions{Size: 2})
	if err != nil {
		t.Fatalf("PageAll() error = %v", err)
	}
	if len(page.Content) != 2 || page.TotalPages != 2 || !page.HasNext {
		t.Errorf("page = %+v", page)
	}
	if page.Content[0].Title != "Java Streams" {
		t.Errorf("first = %q, want soonest event", page.Content[0].Title)
	}

	found, err := ts.events.Search(ctx, "java", 0, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if found.TotalElements != 2 {
		t.Errorf("search total = %d, want 2", found.TotalElements)
	}
}

func TestCalendarDates_UsesLocalZone(t *testing.T) {
	store := newFakeStore()
	logger := slog.New(slog.DiscardHandler)
	users := NewUserService(store, logger)
	groups := NewGroupService(store, store, users, time.UTC, logger)

	vancouver, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	events := NewEventService(store, store, users, vancouver, logger)

	ctx := context.Background()
	g, _, err := groups.Create(ctx, alice, model.GroupInput{Name: "Vancouver JUG"})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []time.Time{
		time.Date(2030, 3, 5, 2, 0, 0, 0, time.UTC),  // 4 March, 18:00 PST
		time.Date(2030, 3, 4, 20, 0, 0, 0, time.UTC), // 4 March, 12:00 PST
		time.Date(2030, 3, 6, 20, 0, 0, 0, time.UTC),
	} {
		if _, err := events.Create(ctx, alice, model.EventInput{Title: "Meetup", Date: d, GroupID: g.ID}); err != nil {
			t.Fatal(err)
		}
	}

	cal, err := events.CalendarDates(ctx)
	if err != nil {
		t.Fatalf("CalendarDates() error = %v", err)
	}
	if cal.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", cal.TotalEvents)
	}
	if cal.EventDates["2030-03-04"] != 2 || cal.EventDates["2030-03-06"] != 1 {
		t.Errorf("EventDates = %v", cal.EventDates)
	}
	if _, ok := cal.EventDates["2030-03-05"]; ok {
		t.Error("no event falls on 5 March in Vancouver")
	}
}
