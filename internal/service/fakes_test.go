package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory implementation of the three repository
// interfaces. It follows the same contracts as the SQL stores (NotFound on
// missing ids, Conflict on duplicate names, "added"/"removed" booleans from
// the membership toggles) so the services cannot tell the difference.
//
// Set failWith to make every call return that error, to simulate a
// database that is down.

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]model.User
	groups    map[int64]model.Group
	members   map[int64]map[string]bool
	events    map[int64]model.Event
	attendees map[int64]map[string]bool
	nextID    int64

	imageWrites int
	failWith    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]model.User),
		groups:    make(map[int64]model.Group),
		members:   make(map[int64]map[string]bool),
		events:    make(map[int64]model.Event),
		attendees: make(map[int64]map[string]bool),
	}
}

var _ repository.UserRepository = (*fakeStore)(nil)
var _ repository.GroupRepository = (*fakeStore)(nil)
var _ repository.EventRepository = (*fakeStore)(nil)

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.users[user.ID]; ok {
		return apperror.Conflict("user", "id", user.ID)
	}
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) UpsertUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	stored, ok := f.users[user.ID]
	if !ok {
		f.users[user.ID] = *user
		return nil
	}
	if user.Name != "" {
		stored.Name = user.Name
	}
	if user.Email != "" {
		stored.Email = user.Email
	}
	if stored.ProfilePictureURL == "" {
		stored.ProfilePictureURL = user.ProfilePictureURL
	}
	f.users[user.ID] = stored
	*user = stored
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

// --- groups ---

func (f *fakeStore) CreateGroup(_ context.Context, group *model.Group, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, g := range f.groups {
		if g.Name == group.Name {
			return apperror.Conflict("group", "name", group.Name)
		}
	}
	f.nextID++
	group.ID = f.nextID
	f.groups[group.ID] = *group
	f.members[group.ID] = make(map[string]bool)
	if memberID != "" {
		f.members[group.ID][memberID] = true
	}
	return nil
}

func (f *fakeStore) GetGroup(_ context.Context, id int64) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, apperror.NotFound("group", fmt.Sprint(id))
	}
	return &g, nil
}

func (f *fakeStore) GetGroupByName(_ context.Context, name string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, g := range f.groups {
		if g.Name == name {
			return &g, nil
		}
	}
	return nil, apperror.NotFound("group", name)
}

func (f *fakeStore) UpdateGroup(_ context.Context, group *model.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[group.ID]; !ok {
		return apperror.NotFound("group", fmt.Sprint(group.ID))
	}
	for id, g := range f.groups {
		if id != group.ID && g.Name == group.Name {
			return apperror.Conflict("group", "name", group.Name)
		}
	}
	f.groups[group.ID] = *group
	return nil
}

func (f *fakeStore) SetGroupImage(_ context.Context, id int64, imageURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return apperror.NotFound("group", fmt.Sprint(id))
	}
	g.ImageURL = imageURL
	f.groups[id] = g
	f.imageWrites++
	return nil
}

func (f *fakeStore) DeleteGroup(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[id]; !ok {
		return apperror.NotFound("group", fmt.Sprint(id))
	}
	delete(f.groups, id)
	delete(f.members, id)
	for eid, e := range f.events {
		if e.GroupID == id {
			delete(f.events, eid)
			delete(f.attendees, eid)
		}
	}
	return nil
}

func (f *fakeStore) sortedGroups() []model.Group {
	out := make([]model.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func (f *fakeStore) summary(g model.Group) model.GroupSummary {
	s := model.GroupSummary{Group: g, MemberCount: int64(len(f.members[g.ID]))}
	for _, e := range f.events {
		if e.GroupID == g.ID {
			s.EventCount++
		}
	}
	return s
}

func (f *fakeStore) ListGroups(_ context.Context) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.sortedGroups(), nil
}

func (f *fakeStore) ListGroupSummaries(_ context.Context) ([]model.GroupSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GroupSummary
	for _, g := range f.sortedGroups() {
		out = append(out, f.summary(g))
	}
	return out, nil
}

func (f *fakeStore) ListMemberGroupSummaries(_ context.Context, userID string) ([]model.GroupSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []model.GroupSummary{}
	for _, g := range f.sortedGroups() {
		if f.members[g.ID][userID] {
			out = append(out, f.summary(g))
		}
	}
	return out, nil
}

func (f *fakeStore) PageGroupSummaries(_ context.Context, userID string, req repository.PageRequest) ([]model.GroupSummary, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.GroupSummary
	for _, g := range f.sortedGroups() {
		if req.Query != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(req.Query)) {
			continue
		}
		s := f.summary(g)
		member := f.members[g.ID][userID]
		s.IsMember = &member
		all = append(all, s)
	}
	sort.SliceStable(all, func(i, j int) bool { return *all[i].IsMember && !*all[j].IsMember })
	return pageSlice(all, req), int64(len(all)), nil
}

func (f *fakeStore) AddMember(_ context.Context, groupID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[groupID][userID] {
		return false, nil
	}
	f.members[groupID][userID] = true
	return true, nil
}

func (f *fakeStore) RemoveMember(_ context.Context, groupID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.members[groupID][userID] {
		return false, nil
	}
	delete(f.members[groupID], userID)
	return true, nil
}

func (f *fakeStore) IsMember(_ context.Context, groupID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID], nil
}

func (f *fakeStore) CountMembers(_ context.Context, groupID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.members[groupID])), nil
}

// --- events ---

func (f *fakeStore) CreateEvent(_ context.Context, event *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[event.GroupID]; !ok {
		return apperror.NotFound("group", fmt.Sprint(event.GroupID))
	}
	f.nextID++
	event.ID = f.nextID
	event.Date = event.Date.UTC()
	f.events[event.ID] = *event
	f.attendees[event.ID] = make(map[string]bool)
	return nil
}

// hydrate fills the nested group and attendees the way the SQL stores do.
func (f *fakeStore) hydrate(e model.Event) model.Event {
	g := f.groups[e.GroupID]
	e.Group = &g
	e.Attendees = []model.User{}
	for uid := range f.attendees[e.ID] {
		e.Attendees = append(e.Attendees, f.users[uid])
	}
	sort.Slice(e.Attendees, func(i, j int) bool { return e.Attendees[i].ID < e.Attendees[j].ID })
	return e
}

func (f *fakeStore) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	e, ok := f.events[id]
	if !ok {
		return nil, apperror.NotFound("event", fmt.Sprint(id))
	}
	e = f.hydrate(e)
	return &e, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, event *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.events[event.ID]
	if !ok {
		return apperror.NotFound("event", fmt.Sprint(event.ID))
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.Date = event.Date.UTC()
	f.events[event.ID] = stored
	return nil
}

func (f *fakeStore) DeleteEvent(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return apperror.NotFound("event", fmt.Sprint(id))
	}
	delete(f.events, id)
	delete(f.attendees, id)
	return nil
}

func (f *fakeStore) sortedEvents(keep func(model.Event) bool) []model.Event {
	out := []model.Event{}
	for _, e := range f.events {
		if keep(e) {
			out = append(out, f.hydrate(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) ListAttendingEvents(_ context.Context, userID string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedEvents(func(e model.Event) bool { return f.attendees[e.ID][userID] }), nil
}

func (f *fakeStore) ListGroupEvents(_ context.Context, groupID int64) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.sortedEvents(func(e model.Event) bool { return e.GroupID == groupID })
	for i := range events {
		events[i].Group = nil
	}
	return events, nil
}

func (f *fakeStore) PageEvents(_ context.Context, groupID int64, req repository.PageRequest) ([]model.Event, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sortedEvents(func(e model.Event) bool {
		if groupID != 0 && e.GroupID != groupID {
			return false
		}
		if req.From != nil && e.Date.Before(*req.From) {
			return false
		}
		return req.Query == "" || strings.Contains(strings.ToLower(e.Title), strings.ToLower(req.Query))
	})
	return pageSlice(all, req), int64(len(all)), nil
}

func (f *fakeStore) EventDates(_ context.Context) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, e := range f.sortedEvents(func(model.Event) bool { return true }) {
		out = append(out, e.Date)
	}
	return out, nil
}

func (f *fakeStore) AddAttendee(_ context.Context, eventID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attendees[eventID][userID] {
		return false, nil
	}
	f.attendees[eventID][userID] = true
	return true, nil
}

func (f *fakeStore) RemoveAttendee(_ context.Context, eventID int64, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.attendees[eventID][userID] {
		return false, nil
	}
	delete(f.attendees[eventID], userID)
	return true, nil
}

func pageSlice[T any](all []T, req repository.PageRequest) []T {
	start := min(req.Offset(), int64(len(all)))
	end := min(start+int64(req.Size), int64(len(all)))
	return all[start:end]
}

// =========================================================================
// TEST HELPERS
// =========================================================================

var (
	alice = auth.Identity{Subject: "auth0|alice", Name: "Alice", Email: "alice@example.com", Source: auth.SourceBearer}
	bob   = auth.Identity{Subject: "auth0|bob", Name: "Bob", Email: "bob@example.com", Source: auth.SourceBearer}
	carol = auth.Identity{Subject: "auth0|carol", Name: "Carol", Email: "carol@example.com", Source: auth.SourceSession}
)

type testServices struct {
	store  *fakeStore
	users  *UserService
	groups *GroupService
	events *EventService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := newFakeStore()
	logger := slog.New(slog.DiscardHandler)
	users := NewUserService(store, logger)
	return &testServices{
		store:  store,
		users:  users,
		groups: NewGroupService(store, store, users, time.UTC, logger),
		events: NewEventService(store, store, users, time.UTC, logger),
	}
}

// mustCreateGroup creates a group owned by id and fails the test on error.
func (ts *testServices) mustCreateGroup(t *testing.T, id auth.Identity, name string) *model.Group {
	t.Helper()
	g, created, err := ts.groups.Create(context.Background(), id, model.GroupInput{Name: name})
	if err != nil || !created {
		t.Fatalf("creating group %q: created=%v err=%v", name, created, err)
	}
	return g
}
