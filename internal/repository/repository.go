// Package repository declares the storage contracts used by the service
// layer. Implementations live in sub-packages (sqlite, postgres); services
// only ever see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/meetup/internal/model"
)

// PageRequest is the single pagination contract for every listing.
//
// Page is zero-based. From, when set, keeps only events dated at or after
// that instant. Query, when non-empty, is a case-insensitive substring
// match on the listing's text column (group name or event title).
type PageRequest struct {
	Page  int
	Size  int
	From  *time.Time
	Query string
}

// Offset returns the number of rows to skip for this page.
func (p PageRequest) Offset() int64 {
	return int64(p.Page) * int64(p.Size)
}

type UserRepository interface {
	// CreateUser inserts a new user. Fails with apperror.ErrConflict when the
	// id or email is already taken.
	CreateUser(ctx context.Context, user *model.User) error

	// UpsertUser inserts the user or refreshes name and email of an existing
	// row with the same id. An existing profile picture is never replaced by
	// an empty one. The stored row is written back into user.
	UpsertUser(ctx context.Context, user *model.User) error

	GetUser(ctx context.Context, id string) (*model.User, error)
}

type GroupRepository interface {
	// CreateGroup inserts the group and, when memberID is non-empty, adds
	// that user as its first member in the same transaction.
	CreateGroup(ctx context.Context, group *model.Group, memberID string) error
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	GetGroupByName(ctx context.Context, name string) (*model.Group, error)
	UpdateGroup(ctx context.Context, group *model.Group) error
	SetGroupImage(ctx context.Context, id int64, imageURL string) error
	DeleteGroup(ctx context.Context, id int64) error

	ListGroups(ctx context.Context) ([]model.Group, error)
	ListGroupSummaries(ctx context.Context) ([]model.GroupSummary, error)
	ListMemberGroupSummaries(ctx context.Context, userID string) ([]model.GroupSummary, error)

	// PageGroupSummaries lists summaries with IsMember set for userID,
	// ordered members-first then by name (case-insensitive).
	PageGroupSummaries(ctx context.Context, userID string, req PageRequest) ([]model.GroupSummary, int64, error)

	// AddMember is idempotent: it reports false when the user was already a
	// member instead of failing.
	AddMember(ctx context.Context, groupID int64, userID string) (bool, error)

	// RemoveMember reports false when the user was not a member.
	RemoveMember(ctx context.Context, groupID int64, userID string) (bool, error)
	IsMember(ctx context.Context, groupID int64, userID string) (bool, error)
	CountMembers(ctx context.Context, groupID int64) (int64, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, event *model.Event) error

	// GetEvent returns the event with its Group and Attendees populated.
	GetEvent(ctx context.Context, id int64) (*model.Event, error)

	// UpdateEvent overwrites title, description and date. The owning group
	// is never changed.
	UpdateEvent(ctx context.Context, event *model.Event) error
	DeleteEvent(ctx context.Context, id int64) error

	// ListAttendingEvents returns the events userID attends, with Group and
	// Attendees populated, ordered by date.
	ListAttendingEvents(ctx context.Context, userID string) ([]model.Event, error)

	// ListGroupEvents returns a group's events with Attendees populated and
	// Group left nil, ordered by date.
	ListGroupEvents(ctx context.Context, groupID int64) ([]model.Event, error)

	// PageEvents lists events ordered by date ascending with Group and
	// Attendees populated. groupID 0 means all groups.
	PageEvents(ctx context.Context, groupID int64, req PageRequest) ([]model.Event, int64, error)

	// EventDates returns the date of every event, for calendar histograms.
	EventDates(ctx context.Context) ([]time.Time, error)

	// AddAttendee is idempotent: it reports false when the user was already
	// attending instead of failing.
	AddAttendee(ctx context.Context, eventID int64, userID string) (bool, error)

	// RemoveAttendee reports false when the user was not attending.
	RemoveAttendee(ctx context.Context, eventID int64, userID string) (bool, error)
}

// Store bundles the three repositories plus lifecycle hooks. Both the
// sqlite and postgres backends satisfy it with a single value.
type Store interface {
	UserRepository
	GroupRepository
	EventRepository
	Ping(ctx context.Context) error
	Close() error
}
