// Package seed fills an empty database with demo data: one Java user group
// per large Canadian city, a year of weekly meetups in each, and a demo
// user who belongs to every group and attends every event.
//
// The frontend's paginated group list and calendar only look meaningful
// with a few thousand rows, which is what this produces.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/image"
	"github.com/sakif/meetup/internal/model"
	"github.com/sakif/meetup/internal/repository"
)

// Demo user.
const (
	DemoUserID    = "john-smith-123"
	DemoUserName  = "John Smith"
	DemoUserEmail = "john.smith@example.com"
)

// WeeksPerGroup is how many weekly events each group gets.
const WeeksPerGroup = 52

// Cities are the seeded group locations, largest first.
var Cities = []string{
	"Toronto", "Montreal", "Calgary", "Ottawa", "Edmonton", "Winnipeg",
	"Mississauga", "Vancouver", "Brampton", "Hamilton", "Surrey",
	"Quebec City", "Halifax", "Laval", "London", "Markham", "Vaughan",
	"Gatineau", "Saskatoon", "Kitchener", "Longueuil", "Burnaby", "Windsor",
	"Regina", "Oakville", "Richmond", "Richmond Hill", "Burlington", "Oshawa",
	"Sherbrooke", "Greater Sudbury", "Abbotsford", "Lévis", "Coquitlam",
	"Barrie", "Saguenay", "Kelowna", "Guelph", "Trois-Rivières", "Whitby",
	"Cambridge", "St. Catharines", "Milton", "Langley", "Kingston", "Ajax",
	"Waterloo", "Terrebonne", "Saanich", "St. John's", "Thunder Bay", "Delta",
	"Brantford", "Chatham-Kent", "Clarington", "Red Deer", "Nanaimo",
	"Strathcona County", "Pickering", "Lethbridge", "Kamloops",
	"Saint-Jean-sur-Richelieu", "Niagara Falls", "Cape Breton", "Chilliwack",
	"Victoria", "Brossard", "Maple Ridge", "North Vancouver", "Newmarket",
	"Repentigny", "Peterborough", "Saint-Jérôme", "Moncton", "Drummondville",
	"Kawartha Lakes", "New Westminster", "Prince George", "Caledon",
}

// Store is what seeding writes to.
type Store interface {
	repository.UserRepository
	repository.GroupRepository
	repository.EventRepository
}

// Result counts what a run created.
type Result struct {
	Groups int
	Events int
}

// Seeder writes the demo data set.
type Seeder struct {
	store  Store
	logger *slog.Logger

	// Cities and Weeks default to the package values; tests shrink them.
	Cities []string
	Weeks  int
}

// New creates a Seeder for the full demo data set.
func New(store Store, logger *slog.Logger) *Seeder {
	return &Seeder{store: store, logger: logger, Cities: Cities, Weeks: WeeksPerGroup}
}

// Run creates every missing city group, starting the weekly events at
// start. A group that already exists is topped up instead: its image,
// the demo user's membership and attendance, and any weeks still missing.
// Running it again is a no-op, and a run interrupted halfway through a
// group finishes that group on the next run.
func (s *Seeder) Run(ctx context.Context, start time.Time) (Result, error) {
	var res Result

	john := &model.User{
		ID:                DemoUserID,
		Name:              DemoUserName,
		Email:             DemoUserEmail,
		ProfilePictureURL: image.ProfileURL(DemoUserID),
	}
	if err := s.store.UpsertUser(ctx, john); err != nil {
		return res, fmt.Errorf("seed: demo user: %w", err)
	}

	start = start.UTC().Truncate(time.Minute)

	for _, city := range s.Cities {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := city + " JUG"
		group, err := s.store.GetGroupByName(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, apperror.ErrNotFound):
			group = &model.Group{
				Name:            name,
				Address:         "-",
				City:            "-",
				StateOrProvince: "-",
				Country:         "-",
				PostalCode:      "-",
			}
			if err := s.store.CreateGroup(ctx, group, DemoUserID); err != nil {
				return res, fmt.Errorf("seed: group %q: %w", name, err)
			}
			res.Groups++
		default:
			return res, fmt.Errorf("seed: looking up %q: %w", name, err)
		}

		n, err := s.fillGroup(ctx, group, city, start)
		res.Events += n
		if err != nil {
			return res, err
		}
	}

	s.logger.Info("seeding complete",
		slog.Int("groups", res.Groups),
		slog.Int("events", res.Events),
		slog.String("user", DemoUserID),
	)
	return res, nil
}

// fillGroup brings one group up to the full data set and reports how many
// events it created. Every step is idempotent. Missing weeks continue the
// schedule of the group's first event, so a rerun on another day does not
// shift it.
func (s *Seeder) fillGroup(ctx context.Context, group *model.Group, city string, start time.Time) (int, error) {
	if group.ImageURL == "" {
		if err := s.store.SetGroupImage(ctx, group.ID, image.GroupURL(group.ID)); err != nil {
			return 0, fmt.Errorf("seed: image of %q: %w", group.Name, err)
		}
	}
	if _, err := s.store.AddMember(ctx, group.ID, DemoUserID); err != nil {
		return 0, fmt.Errorf("seed: joining %q: %w", group.Name, err)
	}

	existing, err := s.store.ListGroupEvents(ctx, group.ID)
	if err != nil {
		return 0, fmt.Errorf("seed: events of %q: %w", group.Name, err)
	}
	for _, e := range existing {
		if _, err := s.store.AddAttendee(ctx, e.ID, DemoUserID); err != nil {
			return 0, fmt.Errorf("seed: attending event %d: %w", e.ID, err)
		}
	}
	if len(existing) > 0 {
		start = existing[0].Date.UTC()
	}

	created := 0
	for week := len(existing); week < s.Weeks; week++ {
		event := &model.Event{
			Date:  start.AddDate(0, 0, 7*week),
			Title: city + " Weekly Java User Meetup",
			Description: "Join us for our weekly Java meetup in " + city +
				" where we discuss the latest in Java development, share knowledge, and network with fellow developers.",
			GroupID: group.ID,
		}
		if err := s.store.CreateEvent(ctx, event); err != nil {
			return created, fmt.Errorf("seed: event %d of %q: %w", week, group.Name, err)
		}
		created++
		if _, err := s.store.AddAttendee(ctx, event.ID, DemoUserID); err != nil {
			return created, fmt.Errorf("seed: attending event %d: %w", event.ID, err)
		}
	}

	if created > 0 {
		s.logger.Debug("seeded group", slog.String("group", group.Name), slog.Int("events", created))
	}
	return created, nil
}
