package domain

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ErrDuplicateReview is returned when a reviewer reviews the same listing twice.
var ErrDuplicateReview = &apperrors.AppError{
	Code:    "DUPLICATE_REVIEW",
	Message: "you have already reviewed this listing",
	Status:  http.StatusConflict,
	Err:     apperrors.ErrAlreadyExists,
}

// Review is one user's rating of a listing. Reviewer fields are a snapshot
// taken at submission time.
type Review struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listing_id"`
	ReviewerID     string    `json:"reviewer_id"`
	ReviewerName   string    `json:"reviewer_name"`
	ReviewerAvatar string    `json:"reviewer_avatar,omitempty"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	Date           time.Time `json:"date"`
}

// NewReviewInput is a review submission.
type NewReviewInput struct {
	ReviewerID     string
	ReviewerName   string
	ReviewerAvatar string
	Rating         int
	Comment        string
}

// Validate checks the submission without looking at any listing.
func (in NewReviewInput) Validate() error {
	if strings.TrimSpace(in.ReviewerID) == "" {
		return apperrors.InvalidInput("reviewer id is required")
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return apperrors.InvalidInput("rating must be between 1 and 5")
	}
	if strings.TrimSpace(in.Comment) == "" {
		return apperrors.InvalidInput("comment must not be empty")
	}
	return nil
}

// AppendReview returns a copy of l with a new review appended. l itself is
// never modified, so a rejected submission leaves the caller's value intact.
func AppendReview(l Listing, in NewReviewInput, now time.Time) (Listing, Review, error) {
	if err := in.Validate(); err != nil {
		return l, Review{}, err
	}
	if l.HasReviewFrom(in.ReviewerID) {
		return l, Review{}, ErrDuplicateReview
	}

	r := Review{
		ID:             uuid.NewString(),
		ListingID:      l.ID,
		ReviewerID:     in.ReviewerID,
		ReviewerName:   strings.TrimSpace(in.ReviewerName),
		ReviewerAvatar: in.ReviewerAvatar,
		Rating:         in.Rating,
		Comment:        strings.TrimSpace(in.Comment),
		Date:           now.UTC(),
	}

	next := l.Clone()
	next.Reviews = append(next.Reviews, r)
	next.UpdatedAt = r.Date
	return next, r, nil
}
