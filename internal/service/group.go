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
	"github.com/sakif/meetup/internal/image"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// Validation constants and the informational texts the API returns for
// membership toggles that change nothing.
const (
	MaxGroupNameLength = 100

	MsgAlreadyMember = "User is already a member of this group"
	MsgNotMember     = "User is not a member of this group"
)

// GroupService handles business logic for groups and their membership.
type GroupService struct {
	groups repository.GroupRepository
	events repository.EventRepository
	users  *UserService
	loc    *time.Location
	logger *slog.Logger
}

// NewGroupService creates a GroupService. loc is the zone calendar-date
// filters are interpreted in.
func NewGroupService(
	groups repository.GroupRepository,
	events repository.EventRepository,
	users *UserService,
	loc *time.Location,
	logger *slog.Logger,
) *GroupService {
	if loc == nil {
		loc = time.UTC
	}
	return &GroupService{
		groups: groups,
		events: events,
		users:  users,
		loc:    loc,
		logger: logger,
	}
}

// =========================================================================
// READS
// =========================================================================

// ListForUser returns the groups the caller belongs to.
func (s *GroupService) ListForUser(ctx context.Context, id auth.Identity) ([]model.GroupSummary, error) {
	summaries, err := s.groups.ListMemberGroupSummaries(ctx, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/group: listing groups of %s: %w", id.Subject, err)
	}
	for i := range summaries {
		if err := s.ensureImage(ctx, &summaries[i].Group); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// ListAll returns every group.
func (s *GroupService) ListAll(ctx context.Context) ([]model.Group, error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/group: listing groups: %w", err)
	}
	for i := range groups {
		if err := s.ensureImage(ctx, &groups[i]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// Summaries returns every group with its member and event counts.
func (s *GroupService) Summaries(ctx context.Context) ([]model.GroupSummary, error) {
	summaries, err := s.groups.ListGroupSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/group: listing summaries: %w", err)
	}
	return summaries, nil
}

// PageAvailable returns one page of all groups, the caller's own first,
// each flagged with whether the caller is a member. opts.Query filters by
// name.
func (s *GroupService) PageAvailable(ctx context.Context, id auth.Identity, opts ListOptions) (model.Page[model.GroupSummary], error) {
	req, err := pageRequest(ListOptions{Page: opts.Page, Size: opts.Size, Query: opts.Query}, DefaultGroupPageSize, s.loc)
	if err != nil {
		return model.Page[model.GroupSummary]{}, err
	}

	summaries, total, err := s.groups.PageGroupSummaries(ctx, id.Subject, req)
	if err != nil {
		return model.Page[model.GroupSummary]{}, fmt.Errorf("service/group: paging groups: %w", err)
	}
	for i := range summaries {
		if err := s.ensureImage(ctx, &summaries[i].Group); err != nil {
			return model.Page[model.GroupSummary]{}, err
		}
	}

	return model.NewPage(summaries, req.Page, req.Size, total), nil
}

// Get returns a group with its events and their attendees.
func (s *GroupService) Get(ctx context.Context, groupID int64) (*model.GroupDetail, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("service/group: fetching group %d: %w", groupID, err)
	}
	if err := s.ensureImage(ctx, group); err != nil {
		return nil, err
	}

	events, err := s.events.ListGroupEvents(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("service/group: listing events of group %d: %w", groupID, err)
	}
	if events == nil {
		events = []model.Event{}
	}

	return &model.GroupDetail{Group: *group, Events: events}, nil
}

// PageEvents returns one page of a group's events from opts.Date onwards.
func (s *GroupService) PageEvents(ctx context.Context, groupID int64, opts ListOptions) (model.Page[model.Event], error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return model.Page[model.Event]{}, fmt.Errorf("service/group: fetching group %d: %w", groupID, err)
	}

	req, err := pageRequest(opts, DefaultEventPageSize, s.loc)
	if err != nil {
		return model.Page[model.Event]{}, err
	}

	events, total, err := s.events.PageEvents(ctx, groupID, req)
	if err != nil {
		return model.Page[model.Event]{}, fmt.Errorf("service/group: paging events of group %d: %w", groupID, err)
	}
	return model.NewPage(events, req.Page, req.Size, total), nil
}

// ensureImage gives a group without a picture its placeholder and saves
// it, so every later read returns the same URL.
func (s *GroupService) ensureImage(ctx context.Context, g *model.Group) error {
	if g.ImageURL != "" {
		return nil
	}
	url := image.GroupURL(g.ID)
	if err := s.groups.SetGroupImage(ctx, g.ID, url); err != nil {
		return fmt.Errorf("service/group: setting image of group %d: %w", g.ID, err)
	}
	g.ImageURL = url
	return nil
}

// =========================================================================
// WRITES
// =========================================================================

// Create makes a new group with the caller as its first member.
//
// NAMES ARE UNIQUE:
// Posting a name that already exists does not always fail:
//   - the existing group has no members: the caller adopts it
//   - the caller is already a member: nothing to do
//   - someone else runs it: apperror.ErrConflict
//
// The boolean result is true only when a new row was created, so the
// handler can choose between 201 and 200.
func (s *GroupService) Create(ctx context.Context, id auth.Identity, in model.GroupInput) (*model.Group, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateGroup(in); err != nil {
		return nil, false, err
	}

	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, false, err
	}

	existing, err := s.groups.GetGroupByName(ctx, in.Name)
	switch {
	case err == nil:
		return s.adopt(ctx, id, existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, fmt.Errorf("service/group: looking up %q: %w", in.Name, err)
	}

	group := &model.Group{}
	in.Apply(group)
	if err := s.groups.CreateGroup(ctx, group, id.Subject); err != nil {
		return nil, false, fmt.Errorf("service/group: creating group: %w", err)
	}

	// The placeholder is keyed by the id, which only exists after insert.
	group.ImageURL = image.GroupURL(group.ID)
	if err := s.groups.SetGroupImage(ctx, group.ID, group.ImageURL); err != nil {
		return nil, false, fmt.Errorf("service/group: setting image of group %d: %w", group.ID, err)
	}

	s.logger.Info("group created",
		slog.Int64("groupID", group.ID),
		slog.String("name", group.Name),
		slog.String("userID", id.Subject),
	)
	return group, true, nil
}

func (s *GroupService) adopt(ctx context.Context, id auth.Identity, group *model.Group) (*model.Group, bool, error) {
	member, err := s.groups.IsMember(ctx, group.ID, id.Subject)
	if err != nil {
		return nil, false, fmt.Errorf("service/group: checking membership of group %d: %w", group.ID, err)
	}
	if member {
		return group, false, nil
	}

	count, err := s.groups.CountMembers(ctx, group.ID)
	if err != nil {
		return nil, false, fmt.Errorf("service/group: counting members of group %d: %w", group.ID, err)
	}
	if count > 0 {
		return nil, false, apperror.Conflict("group", "name", group.Name)
	}

	if _, err := s.groups.AddMember(ctx, group.ID, id.Subject); err != nil {
		return nil, false, fmt.Errorf("service/group: adopting group %d: %w", group.ID, err)
	}
	if err := s.ensureImage(ctx, group); err != nil {
		return nil, false, err
	}

	s.logger.Info("group adopted", slog.Int64("groupID", group.ID), slog.String("userID", id.Subject))
	return group, false, nil
}

// Update overwrites a group's descriptive fields. Membership is untouched.
func (s *GroupService) Update(ctx context.Context, id auth.Identity, groupID int64, in model.GroupInput) (*model.Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateGroup(in); err != nil {
		return nil, err
	}
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, err
	}

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("service/group: fetching group %d: %w", groupID, err)
	}

	in.Apply(group)
	if err := s.groups.UpdateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("service/group: updating group %d: %w", groupID, err)
	}

	s.logger.Info("group updated", slog.Int64("groupID", groupID), slog.String("userID", id.Subject))
	return group, nil
}

// Delete removes a group together with its events and memberships.
func (s *GroupService) Delete(ctx context.Context, id auth.Identity, groupID int64) error {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return err
	}
	if err := s.groups.DeleteGroup(ctx, groupID); err != nil {
		return fmt.Errorf("service/group: deleting group %d: %w", groupID, err)
	}
	s.logger.Info("group deleted", slog.Int64("groupID", groupID), slog.String("userID", id.Subject))
	return nil
}

// =========================================================================
// MEMBERSHIP
// =========================================================================

// JoinResult reports the outcome of Join. When AlreadyMember is true,
// Group is nil and nothing changed.
type JoinResult struct {
	Group         *model.GroupDetail
	AlreadyMember bool
}

// Join makes the caller a member of the group. A group that does not
// exist is apperror.ErrInvalidState, like an event posted to one.
//
// The repository decides "already a member" from the INSERT's affected row
// count, not from a read before the write, so two concurrent joins by the
// same user produce exactly one row and one "already a member" answer.
func (s *GroupService) Join(ctx context.Context, id auth.Identity, groupID int64) (*JoinResult, error) {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidState(MsgGroupNotFound)
		}
		return nil, fmt.Errorf("service/group: fetching group %d: %w", groupID, err)
	}

	added, err := s.groups.AddMember(ctx, groupID, id.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/group: joining group %d: %w", groupID, err)
	}
	if !added {
		return &JoinResult{AlreadyMember: true}, nil
	}

	s.logger.Info("group joined", slog.Int64("groupID", groupID), slog.String("userID", id.Subject))

	detail, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Group: detail}, nil
}

// Leave removes the caller from the group. Leaving a group you are not in
// is apperror.ErrInvalidState.
func (s *GroupService) Leave(ctx context.Context, id auth.Identity, groupID int64) error {
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return err
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return fmt.Errorf("service/group: fetching group %d: %w", groupID, err)
	}

	removed, err := s.groups.RemoveMember(ctx, groupID, id.Subject)
	if err != nil {
		return fmt.Errorf("service/group: leaving group %d: %w", groupID, err)
	}
	if !removed {
		return apperror.InvalidState(MsgNotMember)
	}

	s.logger.Info("group left", slog.Int64("groupID", groupID), slog.String("userID", id.Subject))
	return nil
}

func validateGroup(in model.GroupInput) error {
	if in.Name == "" {
		return apperror.ValidationFailed("name", "group name is required")
	}
	if len(in.Name) > MaxGroupNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("group name must be %d characters or less", MaxGroupNameLength))
	}
	return nil
}
