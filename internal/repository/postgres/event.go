package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

const eventWithGroupColumns = `e.id, e.date, e.title, e.description, e.group_id, ` + groupColumns

func (db *DB) CreateEvent(ctx context.Context, event *model.Event) error {
	event.Date = event.Date.UTC()
	err := db.pool.QueryRow(ctx,
		`INSERT INTO events (date, title, description, group_id) VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		event.Date, event.Title, event.Description, event.GroupID,
	).Scan(&event.ID)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return apperror.NotFound("group", fmt.Sprint(event.GroupID))
		}
		return fmt.Errorf("postgres: creating event: %w", err)
	}
	return nil
}

func (db *DB) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 WHERE e.id = $1`,
		id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperror.NotFound("event", fmt.Sprint(id))
	}
	return &events[0], nil
}

func (db *DB) UpdateEvent(ctx context.Context, event *model.Event) error {
	event.Date = event.Date.UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE events SET date = $1, title = $2, description = $3 WHERE id = $4`,
		event.Date, event.Title, event.Description, event.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating event %d: %w", event.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("event", fmt.Sprint(event.ID))
	}
	return nil
}

func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("event", fmt.Sprint(id))
	}
	return nil
}

func (db *DB) ListAttendingEvents(ctx context.Context, userID string) ([]model.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e
		 JOIN user_group g ON g.id = e.group_id
		 JOIN event_attendees ea ON ea.event_id = e.id
		 WHERE ea.user_id = $1
		 ORDER BY e.date, e.id`,
		userID)
}

func (db *DB) ListGroupEvents(ctx context.Context, groupID int64) ([]model.Event, error) {
	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 WHERE e.group_id = $1
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

func (db *DB) PageEvents(ctx context.Context, groupID int64, req repository.PageRequest) ([]model.Event, int64, error) {
	var (
		filter args
		conds  []string
	)
	if groupID != 0 {
		conds = append(conds, "e.group_id = "+filter.add(groupID))
	}
	if req.From != nil {
		conds = append(conds, "e.date >= "+filter.add(req.From.UTC()))
	}
	if req.Query != "" {
		conds = append(conds, "e.title ILIKE "+filter.add(likePattern(req.Query))+` ESCAPE '\'`)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events e `+where, filter...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: counting events: %w", err)
	}

	page := append(args{}, filter...)
	limit := page.add(req.Size)
	offset := page.add(req.Offset())

	events, err := db.queryEvents(ctx,
		`SELECT `+eventWithGroupColumns+`
		 FROM events e JOIN user_group g ON g.id = e.group_id
		 `+where+`
		 ORDER BY e.date, e.id
		 LIMIT `+limit+` OFFSET `+offset,
		page...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (db *DB) EventDates(ctx context.Context) ([]time.Time, error) {
	rows, err := db.pool.Query(ctx, `SELECT date FROM events ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing event dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("postgres: scanning event date: %w", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating event dates: %w", err)
	}
	return dates, nil
}

func (db *DB) AddAttendee(ctx context.Context, eventID int64, userID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		eventID, userID,
	)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return false, apperror.NotFound("event or user", fmt.Sprintf("%d/%s", eventID, userID))
		}
		return false, fmt.Errorf("postgres: adding attendee %s to event %d: %w", userID, eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) RemoveAttendee(ctx context.Context, eventID int64, userID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM event_attendees WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("postgres: removing attendee %s from event %d: %w", userID, eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// queryEvents reads events with their groups, then loads every attendee
// list with one "= ANY($1)" query. pgx encodes a Go []int64 as a
// PostgreSQL bigint[] array.
func (db *DB) queryEvents(ctx context.Context, query string, params ...any) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing events: %w", err)
	}

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
			return nil, fmt.Errorf("postgres: scanning event row: %w", err)
		}
		e.Date = e.Date.UTC()
		e.Group = &g
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating events: %w", err)
	}

	if len(events) == 0 {
		return events, nil
	}

	ids := make([]int64, len(events))
	index := make(map[int64]int, len(events))
	for i := range events {
		events[i].Attendees = []model.User{}
		ids[i] = events[i].ID
		index[events[i].ID] = i
	}

	attendees, err := db.pool.Query(ctx,
		`SELECT ea.event_id, u.id, u.name, COALESCE(u.email, ''), u.profile_picture_url
		 FROM event_attendees ea JOIN users u ON u.id = ea.user_id
		 WHERE ea.event_id = ANY($1)
		 ORDER BY u.name, u.id`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing attendees: %w", err)
	}
	defer attendees.Close()

	for attendees.Next() {
		var (
			eventID int64
			u       model.User
		)
		if err := attendees.Scan(&eventID, &u.ID, &u.Name, &u.Email, &u.ProfilePictureURL); err != nil {
			return nil, fmt.Errorf("postgres: scanning attendee row: %w", err)
		}
		if i, ok := index[eventID]; ok {
			events[i].Attendees = append(events[i].Attendees, u)
		}
	}
	if err := attendees.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating attendees: %w", err)
	}
	return events, nil
}
