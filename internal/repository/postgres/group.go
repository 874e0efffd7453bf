package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

const groupColumns = `g.id, g.name, g.address, g.city, g.state_or_province,
	g.country, g.postal_code, g.image_url`

const summaryColumns = groupColumns + `,
	(SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) AS member_count,
	(SELECT COUNT(*) FROM events e WHERE e.group_id = g.id) AS event_count`

// pgx.Row is satisfied by both the single-row result and pgx.Rows.
func scanGroup(row pgx.Row, g *model.Group, extra ...any) error {
	dest := []any{
		&g.ID, &g.Name, &g.Address, &g.City, &g.StateOrProvince,
		&g.Country, &g.PostalCode, &g.ImageURL,
	}
	return row.Scan(append(dest, extra...)...)
}

func (db *DB) CreateGroup(ctx context.Context, group *model.Group, memberID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO user_group (name, address, city, state_or_province, country, postal_code, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		group.Name, group.Address, group.City, group.StateOrProvince,
		group.Country, group.PostalCode, group.ImageURL,
	).Scan(&id)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("postgres: creating group: %w", err)
	}

	if memberID != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, id, memberID,
		); err != nil {
			if hasCode(err, codeForeignKeyViolation) {
				return apperror.NotFound("user", memberID)
			}
			return fmt.Errorf("postgres: adding first member to group %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: committing group %d: %w", id, err)
	}
	group.ID = id
	return nil
}

func (db *DB) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	var g model.Group
	row := db.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_group g WHERE g.id = $1`, id)
	if err := scanGroup(row, &g); err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("group", fmt.Sprint(id))
		}
		return nil, fmt.Errorf("postgres: getting group %d: %w", id, err)
	}
	return &g, nil
}

func (db *DB) GetGroupByName(ctx context.Context, name string) (*model.Group, error) {
	var g model.Group
	row := db.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_group g WHERE g.name = $1`, name)
	if err := scanGroup(row, &g); err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("group", name)
		}
		return nil, fmt.Errorf("postgres: getting group by name %q: %w", name, err)
	}
	return &g, nil
}

func (db *DB) UpdateGroup(ctx context.Context, group *model.Group) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE user_group
		 SET name = $1, address = $2, city = $3, state_or_province = $4,
		     country = $5, postal_code = $6, image_url = $7
		 WHERE id = $8`,
		group.Name, group.Address, group.City, group.StateOrProvince,
		group.Country, group.PostalCode, group.ImageURL, group.ID,
	)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("postgres: updating group %d: %w", group.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("group", fmt.Sprint(group.ID))
	}
	return nil
}

func (db *DB) SetGroupImage(ctx context.Context, id int64, imageURL string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE user_group SET image_url = $1 WHERE id = $2`, imageURL, id)
	if err != nil {
		return fmt.Errorf("postgres: setting image of group %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("group", fmt.Sprint(id))
	}
	return nil
}

func (db *DB) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM user_group WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting group %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("group", fmt.Sprint(id))
	}
	return nil
}

func (db *DB) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM user_group g ORDER BY LOWER(g.name), g.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("postgres: scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating groups: %w", err)
	}
	return groups, nil
}

func (db *DB) ListGroupSummaries(ctx context.Context) ([]model.GroupSummary, error) {
	return db.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM user_group g ORDER BY LOWER(g.name), g.id`)
}

func (db *DB) ListMemberGroupSummaries(ctx context.Context, userID string) ([]model.GroupSummary, error) {
	return db.querySummaries(ctx,
		`SELECT `+summaryColumns+`
		 FROM user_group g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY LOWER(g.name), g.id`,
		userID)
}

func (db *DB) querySummaries(ctx context.Context, query string, params ...any) ([]model.GroupSummary, error) {
	rows, err := db.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing group summaries: %w", err)
	}
	defer rows.Close()

	summaries := []model.GroupSummary{}
	for rows.Next() {
		var s model.GroupSummary
		if err := scanGroup(rows, &s.Group, &s.MemberCount, &s.EventCount); err != nil {
			return nil, fmt.Errorf("postgres: scanning group summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating group summaries: %w", err)
	}
	return summaries, nil
}

func (db *DB) PageGroupSummaries(ctx context.Context, userID string, req repository.PageRequest) ([]model.GroupSummary, int64, error) {
	var (
		filter args
		where  string
	)
	if req.Query != "" {
		where = `WHERE g.name ILIKE ` + filter.add(likePattern(req.Query)) + ` ESCAPE '\'`
	}

	var total int64
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_group g `+where, filter...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: counting groups: %w", err)
	}

	// The page query reuses the filter's $1 and continues numbering after it.
	page := append(args{}, filter...)
	userParam := page.add(userID)
	limit := page.add(req.Size)
	offset := page.add(req.Offset())

	rows, err := db.pool.Query(ctx,
		`SELECT `+summaryColumns+`,
			EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = `+userParam+`) AS is_member
		 FROM user_group g `+where+`
		 ORDER BY is_member DESC, LOWER(g.name), g.id
		 LIMIT `+limit+` OFFSET `+offset,
		page...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: paging groups: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.GroupSummary, 0, req.Size)
	for rows.Next() {
		var (
			s        model.GroupSummary
			isMember bool
		)
		if err := scanGroup(rows, &s.Group, &s.MemberCount, &s.EventCount, &isMember); err != nil {
			return nil, 0, fmt.Errorf("postgres: scanning group page row: %w", err)
		}
		s.IsMember = &isMember
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterating group page: %w", err)
	}
	return summaries, total, nil
}

func (db *DB) AddMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID,
	)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return false, apperror.NotFound("group or user", fmt.Sprintf("%d/%s", groupID, userID))
		}
		return false, fmt.Errorf("postgres: adding member %s to group %d: %w", userID, groupID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) RemoveMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("postgres: removing member %s from group %d: %w", userID, groupID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) IsMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	var member bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("postgres: checking membership of %s in group %d: %w", userID, groupID, err)
	}
	return member, nil
}

func (db *DB) CountMembers(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting members of group %d: %w", groupID, err)
	}
	return n, nil
}
