package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// groupColumns is the column list every group query selects, in the order
// scanGroup expects. The "g" alias must be bound to user_group.
const groupColumns = `g.id, g.name, g.address, g.city, g.state_or_province,
	g.country, g.postal_code, g.image_url`

// summaryColumns extends groupColumns with the two aggregate counts.
// Correlated subqueries keep each count independent: joining both
// group_members and events in one GROUP BY would multiply the rows.
const summaryColumns = groupColumns + `,
	(SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) AS member_count,
	(SELECT COUNT(*) FROM events e WHERE e.group_id = g.id) AS event_count`

// rowScanner is satisfied by both *sql.Row and *sql.Rows, so one scan
// function serves single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner, g *model.Group, extra ...any) error {
	dest := []any{
		&g.ID, &g.Name, &g.Address, &g.City, &g.StateOrProvince,
		&g.Country, &g.PostalCode, &g.ImageURL,
	}
	return row.Scan(append(dest, extra...)...)
}

// CreateGroup inserts a group and optionally its first member.
//
// TRANSACTIONS:
// The group row and the membership row must appear together or not at all.
// BeginTx gives us a sql.Tx; everything run through tx is invisible to
// other connections until Commit. If any step fails, the deferred Rollback
// undoes the lot (Rollback after a successful Commit is a harmless no-op).
func (db *DB) CreateGroup(ctx context.Context, group *model.Group, memberID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO user_group (name, address, city, state_or_province, country, postal_code, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.Name,
		group.Address,
		group.City,
		group.StateOrProvince,
		group.Country,
		group.PostalCode,
		group.ImageURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("sqlite: creating group: %w", err)
	}

	// LastInsertId returns the INTEGER PRIMARY KEY SQLite just assigned.
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new group id: %w", err)
	}

	if memberID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`,
			id, memberID,
		); err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("user", memberID)
			}
			return fmt.Errorf("sqlite: adding first member to group %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing group %d: %w", id, err)
	}

	group.ID = id
	return nil
}

// GetGroup retrieves a group by id.
// Returns apperror.ErrNotFound if no group exists with that id.
func (db *DB) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	var g model.Group
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM user_group g WHERE g.id = ?`, id)
	if err := scanGroup(row, &g); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("group", fmt.Sprint(id))
		}
		return nil, fmt.Errorf("sqlite: getting group %d: %w", id, err)
	}
	return &g, nil
}

// GetGroupByName retrieves a group by its exact name.
func (db *DB) GetGroupByName(ctx context.Context, name string) (*model.Group, error) {
	var g model.Group
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM user_group g WHERE g.name = ?`, name)
	if err := scanGroup(row, &g); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("group", name)
		}
		return nil, fmt.Errorf("sqlite: getting group by name %q: %w", name, err)
	}
	return &g, nil
}

// UpdateGroup overwrites every descriptive column. Membership is untouched.
func (db *DB) UpdateGroup(ctx context.Context, group *model.Group) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE user_group
		 SET name = ?, address = ?, city = ?, state_or_province = ?,
		     country = ?, postal_code = ?, image_url = ?
		 WHERE id = ?`,
		group.Name,
		group.Address,
		group.City,
		group.StateOrProvince,
		group.Country,
		group.PostalCode,
		group.ImageURL,
		group.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("sqlite: updating group %d: %w", group.ID, err)
	}
	return checkAffected(result, "group", group.ID)
}

func (db *DB) SetGroupImage(ctx context.Context, id int64, imageURL string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE user_group SET image_url = ? WHERE id = ?`, imageURL, id)
	if err != nil {
		return fmt.Errorf("sqlite: setting image of group %d: %w", id, err)
	}
	return checkAffected(result, "group", id)
}

// DeleteGroup removes the group. Its events, memberships and attendance
// rows go with it through ON DELETE CASCADE.
func (db *DB) DeleteGroup(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM user_group WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting group %d: %w", id, err)
	}
	return checkAffected(result, "group", id)
}

// ListGroups returns every group ordered by name.
func (db *DB) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM user_group g ORDER BY g.name COLLATE NOCASE, g.id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating groups: %w", err)
	}
	return groups, nil
}

// ListGroupSummaries returns every group with member and event counts.
func (db *DB) ListGroupSummaries(ctx context.Context) ([]model.GroupSummary, error) {
	return db.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM user_group g ORDER BY g.name COLLATE NOCASE, g.id`)
}

// ListMemberGroupSummaries returns the summaries of the groups userID belongs to.
func (db *DB) ListMemberGroupSummaries(ctx context.Context, userID string) ([]model.GroupSummary, error) {
	return db.querySummaries(ctx,
		`SELECT `+summaryColumns+`
		 FROM user_group g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = ?
		 ORDER BY g.name COLLATE NOCASE, g.id`,
		userID)
}

func (db *DB) querySummaries(ctx context.Context, query string, args ...any) ([]model.GroupSummary, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing group summaries: %w", err)
	}
	defer rows.Close()

	summaries := []model.GroupSummary{}
	for rows.Next() {
		var s model.GroupSummary
		if err := scanGroup(rows, &s.Group, &s.MemberCount, &s.EventCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating group summaries: %w", err)
	}
	return summaries, nil
}

// PageGroupSummaries returns one page of summaries, members-first.
//
// The is_member flag is computed in SQL and used both as the first sort key
// and as the IsMember field, so ordering and pagination happen entirely in
// the database. The total comes from a separate COUNT(*) with the same
// filter.
func (db *DB) PageGroupSummaries(ctx context.Context, userID string, req repository.PageRequest) ([]model.GroupSummary, int64, error) {
	where, args := "", []any{}
	if req.Query != "" {
		where = `WHERE ` + foldFunc + `(g.name) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(req.Query))
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_group g `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting groups: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+summaryColumns+`,
			EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?) AS is_member
		 FROM user_group g `+where+`
		 ORDER BY is_member DESC, g.name COLLATE NOCASE, g.id
		 LIMIT ? OFFSET ?`,
		append(append([]any{userID}, args...), req.Size, req.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: paging groups: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.GroupSummary, 0, req.Size)
	for rows.Next() {
		var (
			s        model.GroupSummary
			isMember bool
		)
		if err := scanGroup(rows, &s.Group, &s.MemberCount, &s.EventCount, &isMember); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning group page row: %w", err)
		}
		s.IsMember = &isMember
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating group page: %w", err)
	}
	return summaries, total, nil
}

// AddMember inserts the membership if it is not already there.
//
// INSERT ... ON CONFLICT DO NOTHING:
// The (group_id, user_id) primary key makes a duplicate insert a no-op
// instead of an error. RowsAffected then tells us whether this call added
// the member (1) or found them already present (0). Two concurrent joins
// for the same pair cannot both see "added".
func (db *DB) AddMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperror.NotFound("group or user", fmt.Sprintf("%d/%s", groupID, userID))
		}
		return false, fmt.Errorf("sqlite: adding member %s to group %d: %w", userID, groupID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveMember deletes the membership and reports whether one existed.
func (db *DB) RemoveMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: removing member %s from group %d: %w", userID, groupID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) IsMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	var member bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`,
		groupID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking membership of %s in group %d: %w", userID, groupID, err)
	}
	return member, nil
}

func (db *DB) CountMembers(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting members of group %d: %w", groupID, err)
	}
	return n, nil
}
