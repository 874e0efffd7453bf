package service

import (
	"math"
	"strings"
	"time"

	"github.com/sakif/meetup/internal/apperror"
	"github.com/sakif/meetup/internal/repository"
)

// Paging constants.
const (
	DefaultGroupPageSize = 12
	DefaultEventPageSize = 20
	MaxPageSize          = 100

	// DateLayout is the calendar date format accepted by the "date"
	// filter and used as the key of the calendar histogram.
	DateLayout = "2006-01-02"
)

// ListOptions is what a caller asks of a paginated listing. Zero values
// mean "use the default".
type ListOptions struct {
	Page  int
	Size  int
	Date  string // optional lower bound, a calendar date in the server's zone
	Query string // optional case-insensitive substring
}

// pageRequest normalises opts into the repository contract.
//
// A negative page becomes 0; a size outside 1..MaxPageSize is clamped
// instead of rejected, so a client asking for size=1000 still gets a
// response. A huge page is pinned so the row offset fits in 32 bits.
func pageRequest(opts ListOptions, defaultSize int, loc *time.Location) (repository.PageRequest, error) {
	req := repository.PageRequest{
		Page:  max(opts.Page, 0),
		Size:  opts.Size,
		Query: strings.TrimSpace(opts.Query),
	}

	switch {
	case req.Size == 0:
		req.Size = defaultSize
	case req.Size < 1:
		req.Size = 1
	case req.Size > MaxPageSize:
		req.Size = MaxPageSize
	}

	// Past this page Page*Size overflows int. Such a page is far beyond any
	// row, so pin it at the last page whose offset still fits: the result is
	// the same empty page.
	if limit := math.MaxInt32 / req.Size; req.Page > limit {
		req.Page = limit
	}

	if d := strings.TrimSpace(opts.Date); d != "" {
		from, err := startOfDay(d, loc)
		if err != nil {
			return repository.PageRequest{}, err
		}
		req.From = &from
	}

	return req, nil
}

// startOfDay parses a YYYY-MM-DD date as midnight in loc and returns that
// instant in UTC, the zone events are stored in.
func startOfDay(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed("date", "date must be formatted as YYYY-MM-DD")
	}
	return t.UTC(), nil
}
