package http

import (
	"math"
	"strconv"
	"time"

	"github.com/bjamilk/campusmarket/internal/domain"
)

// RatingLabelNew is shown instead of a number for unreviewed listings.
const RatingLabelNew = "New"

// ListingView is the public representation of a listing. Rating and review
// count are derived from the reviews on every render.
type ListingView struct {
	ID              string                 `json:"id"`
	Kind            domain.Kind            `json:"kind"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	PostedBy        domain.Poster          `json:"posted_by"`
	PostedDate      time.Time              `json:"posted_date"`
	Attributes      map[string]any         `json:"attributes,omitempty"`
	Rating          *float64               `json:"rating,omitempty"`
	RatingLabel     string                 `json:"rating_label"`
	ReviewCount     int                    `json:"review_count"`
	Reviews         []domain.Review        `json:"reviews"`
	ModerationState domain.ModerationState `json:"moderation_state"`
	IsReported      bool                   `json:"is_reported"`
	IsClosed        bool                   `json:"is_closed"`
	TerminalLabel   domain.TerminalLabel   `json:"terminal_label"`
	Version         int64                  `json:"version"`
}

func toListingView(l *domain.Listing) ListingView {
	v := ListingView{
		ID:              l.ID,
		Kind:            l.Kind,
		Title:           l.Title,
		Description:     l.Description,
		PostedBy:        l.PostedBy,
		PostedDate:      l.PostedDate,
		Attributes:      l.Attributes,
		RatingLabel:     RatingLabelNew,
		ReviewCount:     l.ReviewCount(),
		Reviews:         l.Reviews,
		ModerationState: l.ModerationState(),
		IsReported:      l.IsReported,
		IsClosed:        l.IsClosed,
		TerminalLabel:   l.Kind.TerminalLabel(),
		Version:         l.Version,
	}
	if v.Reviews == nil {
		v.Reviews = []domain.Review{}
	}
	if avg, ok := l.AverageRating(); ok {
		rounded := math.Round(avg*10) / 10
		v.Rating = &rounded
		v.RatingLabel = strconv.FormatFloat(rounded, 'f', 1, 64)
	}
	return v
}

func toListingViews(ls []domain.Listing) []ListingView {
	out := make([]ListingView, 0, len(ls))
	for i := range ls {
		out = append(out, toListingView(&ls[i]))
	}
	return out
}

// KindView describes one listing kind.
type KindView struct {
	Kind          domain.Kind          `json:"kind"`
	TerminalLabel domain.TerminalLabel `json:"terminal_label"`
}

// ReviewResult is returned after a review is accepted.
type ReviewResult struct {
	Listing ListingView   `json:"listing"`
	Review  domain.Review `json:"review"`
}

// SessionView is a companion session without its system prompt.
type SessionView struct {
	ID         string               `json:"id"`
	Provider   string               `json:"provider"`
	History    []domain.ChatMessage `json:"history"`
	CreatedAt  time.Time            `json:"created_at"`
	LastActive time.Time            `json:"last_active"`
}

func toSessionView(s *domain.ChatSession) SessionView {
	return SessionView{
		ID:         s.ID,
		Provider:   s.Provider,
		History:    s.History,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
	}
}
