package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// eventWithGroupColumns selects an event joined to its owning group.
// Queries using it must alias events as "e" and user_group as "g".
const eventWithGroupColumns = `e.id, e.date, e.title, e.description, e.group_id, ` + groupColumns

// TIMESTAMPS:
// Dates are always written in UTC. The driver stores time.Time as text in a
// fixed layout, so with a single zone the text order equals the time order
// and "e.date >= ?" compares correctly.

func (db *DB) CreateEvent(ctx context.Context, event *model.Event) error {
	event.Date = event.Date.UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (date, title, description, group_id) VALUES (?, ?, ?, ?)`,
		event.Date,
		event.Title,
		event.Description,
		event.GroupID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("group", fmt.Sprint(event.GroupID))
		}
		return fmt.Errorf("sqlite: creating event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new event id: %w", err)
	}
	event.ID = id
	return nil
}

// GetEvent loads one event with its group and attendees.
func (db *DB) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 WHERE e.id = ?`,
		id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperror.NotFound("event", fmt.Sprint(id))
	}
	return &events[0], nil
}

// UpdateEvent overwrites the mutable columns. group_id is deliberately
// absent from the SET list: an event never moves between groups.
func (db *DB) UpdateEvent(ctx context.Context, event *model.Event) error {
	event.Date = event.Date.UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE events SET date = ?, title = ?, description = ? WHERE id = ?`,
		event.Date,
		event.Title,
		event.Description,
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating event %d: %w", event.ID, err)
	}
	return checkAffected(result, "event", event.ID)
}

func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %d: %w", id, err)
	}
	return checkAffected(result, "event", id)
}

func (db *DB) ListAttendingEvents(ctx context.Context, userID string) ([]model.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e
		 JOIN user_group g ON g.id = e.group_id
		 JOIN event_attendees ea ON ea.event_id = e.id
		 WHERE ea.user_id = ?
		 ORDER BY e.date, e.id`,
		userID)
}

// ListGroupEvents returns a group's events without the nested group, since
// the caller is already rendering that group.
func (db *DB) ListGroupEvents(ctx context.Context, groupID int64) ([]model.Event, error) {
	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 WHERE e.group_id = ?
		 ORDER BY e.date, e.id`,
		groupID)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Group = nil
	}
	return events, nil
}

// PageEvents returns one page of events ordered by date ascending.
//
// BUILDING THE WHERE CLAUSE:
// Each optional filter appends one condition and its argument. The same
// clause and arguments feed both the COUNT(*) and the page query, so the
// total always describes exactly the rows being paged.
func (db *DB) PageEvents(ctx context.Context, groupID int64, req repository.PageRequest) ([]model.Event, int64, error) {
	var (
		conds []string
		args  []any
	)
	if groupID != 0 {
		conds = append(conds, "e.group_id = ?")
		args = append(args, groupID)
	}
	if req.From != nil {
		conds = append(conds, "e.date >= ?")
		args = append(args, req.From.UTC())
	}
	if req.Query != "" {
		conds = append(conds, foldFunc+`(e.title) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(req.Query))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events e `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting events: %w", err)
	}

	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 `+where+`
		 ORDER BY e.date, e.id
		 LIMIT ? OFFSET ?`,
		append(args, req.Size, req.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (db *DB) EventDates(ctx context.Context) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT date FROM events ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing event dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating event dates: %w", err)
	}
	return dates, nil
}

// AddAttendee inserts the attendance row if absent. See AddMember.
func (db *DB) AddAttendee(ctx context.Context, eventID int64, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO event_attendees (event_id, user_id) VALUES (?, ?)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		eventID, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperror.NotFound("event or user", fmt.Sprintf("%d/%s", eventID, userID))
		}
		return false, fmt.Errorf("sqlite: adding attendee %s to event %d: %w", userID, eventID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) RemoveAttendee(ctx context.Context, eventID int64, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM event_attendees WHERE event_id = ? AND user_id = ?`,
		eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: removing attendee %s from event %d: %w", userID, eventID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// queryEvents runs a query selecting eventWithGroupColumns and then loads
// the attendees of every returned event.
//
// AVOIDING N+1 QUERIES:
// Loading attendees per event would cost one query per row. Instead we
// collect the ids and fetch all attendees in a single IN (...) query, then
// hand them out by event id. Two queries total, whatever the page size.
//
// The first result set is fully read and closed before the attendee query
// runs, so this also works on a single-connection pool.
func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}

	// rows is closed explicitly (not deferred) because attachAttendees must
	// run after it is released.
	events := []model.Event{}
	for rows.Next() {
		var (
			e model.Event
			g model.Group
		)
		if err := rows.Scan(
			&e.ID, &e.Date, &e.Title, &e.Description, &e.GroupID,
			&g.ID, &g.Name, &g.Address, &g.City, &g.StateOrProvince,
			&g.Country, &g.PostalCode, &g.ImageURL,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		e.Group = &g
		events = append(events, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}

	if err := db.attachAttendees(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (db *DB) attachAttendees(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	index := make(map[int64]int, len(events))
	placeholders := make([]string, len(events))
	args := make([]any, len(events))
	for i := range events {
		events[i].Attendees = []model.User{}
		index[events[i].ID] = i
		placeholders[i] = "?"
		args[i] = events[i].ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT ea.event_id, u.id, u.name, u.email, u.profile_picture_url
		 FROM event_attendees ea JOIN users u ON u.id = ea.user_id
		 WHERE ea.event_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY u.name, u.id`,
		args...)
	if err != nil {
		return fmt.Errorf("sqlite: listing attendees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			u       model.User
			email   sql.NullString
		)
		if err := rows.Scan(&eventID, &u.ID, &u.Name, &email, &u.ProfilePictureURL); err != nil {
			return fmt.Errorf("sqlite: scanning attendee row: %w", err)
		}
		u.Email = email.String
		if i, ok := index[eventID]; ok {
			events[i].Attendees = append(events[i].Attendees, u)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating attendees: %w", err)
	}
	return nil
}
