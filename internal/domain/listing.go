package domain

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// ModerationState is the reporting state of a listing.
type ModerationState string

const (
	ModerationActive   ModerationState = "active"
	ModerationReported ModerationState = "reported"
)

// Poster identifies the user who created a listing.
type Poster struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Listing is a marketplace post of any kind. Kind-specific form fields live
// in Attributes and are not interpreted here.
type Listing struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	PostedBy    Poster         `json:"posted_by"`
	PostedDate  time.Time      `json:"posted_date"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Reviews     []Review       `json:"reviews"`
	IsReported  bool           `json:"is_reported"`
	Report      *Report        `json:"report,omitempty"`
	IsClosed    bool           `json:"is_closed"`
	Version     int64          `json:"version"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewListingInput holds the fields a poster supplies when creating a listing.
type NewListingInput struct {
	Kind        Kind
	Title       string
	Description string
	Poster      Poster
	Attributes  map[string]any
}

// NewListing builds a version-1 listing with a fresh ID.
func NewListing(in NewListingInput, now time.Time) (Listing, error) {
	if !in.Kind.Valid() {
		return Listing{}, apperrors.InvalidInput("unknown listing kind")
	}
	if strings.TrimSpace(in.Title) == "" {
		return Listing{}, apperrors.InvalidInput("title is required")
	}
	if strings.TrimSpace(in.Poster.ID) == "" || strings.TrimSpace(in.Poster.Name) == "" {
		return Listing{}, apperrors.InvalidInput("poster id and name are required")
	}

	now = now.UTC()
	return Listing{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		PostedBy:    in.Poster,
		PostedDate:  now,
		Attributes:  maps.Clone(in.Attributes),
		Reviews:     []Review{},
		Version:     1,
		UpdatedAt:   now,
	}, nil
}

// AverageRating returns the mean review rating. ok is false when the
// listing has no reviews yet.
func (l Listing) AverageRating() (avg float64, ok bool) {
	if len(l.Reviews) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range l.Reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(l.Reviews)), true
}

// ReviewCount returns the number of reviews.
func (l Listing) ReviewCount() int {
	return len(l.Reviews)
}

// HasReviewFrom reports whether reviewerID has already reviewed the listing.
func (l Listing) HasReviewFrom(reviewerID string) bool {
	for _, r := range l.Reviews {
		if r.ReviewerID == reviewerID {
			return true
		}
	}
	return false
}

// ModerationState derives the moderation state from IsReported.
func (l Listing) ModerationState() ModerationState {
	if l.IsReported {
		return ModerationReported
	}
	return ModerationActive
}

// Clone returns a copy that shares no mutable state with l.
func (l Listing) Clone() Listing {
	c := l
	c.Attributes = maps.Clone(l.Attributes)
	c.Reviews = append([]Review(nil), l.Reviews...)
	if c.Reviews == nil {
		c.Reviews = []Review{}
	}
	if l.Report != nil {
		r := *l.Report
		c.Report = &r
	}
	return c
}

// StoreKey, StoreVersion and WithVersion let generic stores track listings.
func (l Listing) StoreKey() string    { return l.ID }
func (l Listing) StoreVersion() int64 { return l.Version }
func (l Listing) WithVersion(v int64) Listing {
	l.Version = v
	return l
}
