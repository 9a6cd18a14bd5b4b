package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// MaxUpdateAttempts bounds the read-modify-write retries on a version conflict.
const MaxUpdateAttempts = 3

// EventPublisher emits listing events after a successful write.
type EventPublisher interface {
	ListingCreated(ctx context.Context, l *domain.Listing) error
	ListingReviewed(ctx context.Context, l *domain.Listing, r *domain.Review) error
	ListingReported(ctx context.Context, l *domain.Listing) error
	ListingClosed(ctx context.Context, l *domain.Listing) error
}

// CreateListingInput holds the parameters for creating a listing.
type CreateListingInput struct {
	Kind        domain.Kind
	Title       string
	Description string
	PosterID    string
	PosterName  string
	Attributes  map[string]any
}

// MarketplaceService is the single entry point for listing operations of
// every kind.
type MarketplaceService struct {
	stores    *repository.Registry
	publisher EventPublisher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewMarketplaceService creates a new marketplace service.
func NewMarketplaceService(stores *repository.Registry, publisher EventPublisher, metrics *Metrics, logger *slog.Logger) *MarketplaceService {
	return &MarketplaceService{
		stores:    stores,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateListing stores a new version-1 listing.
func (s *MarketplaceService) CreateListing(ctx context.Context, input CreateListingInput) (*domain.Listing, error) {
	l, err := domain.NewListing(domain.NewListingInput{
		Kind:        input.Kind,
		Title:       input.Title,
		Description: input.Description,
		Poster:      domain.Poster{ID: input.PosterID, Name: input.PosterName},
		Attributes:  input.Attributes,
	}, s.now())
	if err != nil {
		return nil, err
	}

	store, err := s.stores.Store(l.Kind)
	if err != nil {
		return nil, err
	}
	if err := store.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.metrics.listingsCreated.WithLabelValues(string(l.Kind)).Inc()
	s.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", l.ID),
		slog.String("kind", string(l.Kind)),
		slog.String("poster_id", l.PostedBy.ID),
	)
	if err := s.publisher.ListingCreated(ctx, &l); err != nil {
		s.logger.WarnContext(ctx, "failed to publish listing created event",
			slog.String("listing_id", l.ID),
			slog.String("error", err.Error()),
		)
	}
	return &l, nil
}

// GetListing returns one listing.
func (s *MarketplaceService) GetListing(ctx context.Context, kind domain.Kind, id string) (*domain.Listing, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("listing id is required")
	}
	store, err := s.stores.Store(kind)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// ListListings returns one page of listings of a kind and the total count.
func (s *MarketplaceService) ListListings(ctx context.Context, kind domain.Kind, filter repository.ListingFilter) ([]domain.Listing, int, error) {
	store, err := s.stores.Store(kind)
	if err != nil {
		return nil, 0, err
	}
	listings, total, err := store.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	return listings, total, nil
}

// SubmitReview appends a review and returns the updated listing with the
// recomputed rating. A reviewer may review a listing only once.
func (s *MarketplaceService) SubmitReview(ctx context.Context, kind domain.Kind, id string, input domain.NewReviewInput) (*domain.Listing, *domain.Review, error) {
	if err := input.Validate(); err != nil {
		return nil, nil, err
	}

	var review domain.Review
	updated, err := s.update(ctx, kind, id, func(l domain.Listing) (domain.Listing, bool, error) {
		next, r, err := domain.AppendReview(l, input, s.now())
		if err != nil {
			return l, false, err
		}
		review = r
		return next, true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	avg, _ := updated.AverageRating()
	s.metrics.reviews.WithLabelValues(string(kind)).Inc()
	s.logger.InfoContext(ctx, "review submitted",
		slog.String("listing_id", id),
		slog.String("kind", string(kind)),
		slog.String("reviewer_id", review.ReviewerID),
		slog.Int("rating", review.Rating),
		slog.Float64("average_rating", avg),
		slog.Int("review_count", updated.ReviewCount()),
	)
	if err := s.publisher.ListingReviewed(ctx, updated, &review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish listing reviewed event",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
	return updated, &review, nil
}

// ReportListing flags a listing as reported. Repeated reports succeed
// without changing anything.
func (s *MarketplaceService) ReportListing(ctx context.Context, kind domain.Kind, id string, input domain.ReportInput) (*domain.ReportAck, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var ack domain.ReportAck
	updated, err := s.update(ctx, kind, id, func(l domain.Listing) (domain.Listing, bool, error) {
		next, a, err := domain.MarkReported(l, input, s.now())
		if err != nil {
			return l, false, err
		}
		ack = a
		return next, !a.AlreadyReported, nil
	})
	if err != nil {
		return nil, err
	}
	if ack.AlreadyReported {
		s.logger.DebugContext(ctx, "listing already reported", slog.String("listing_id", id))
		return &ack, nil
	}

	s.metrics.reports.WithLabelValues(string(kind), string(updated.Report.Reason)).Inc()
	s.logger.InfoContext(ctx, "listing reported",
		slog.String("listing_id", id),
		slog.String("kind", string(kind)),
		slog.String("reason", string(updated.Report.Reason)),
	)
	if err := s.publisher.ListingReported(ctx, updated); err != nil {
		s.logger.WarnContext(ctx, "failed to publish listing reported event",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
	return &ack, nil
}

// SetClosed marks a listing sold, resolved or closed (or reopens it). Only
// the poster may do this.
func (s *MarketplaceService) SetClosed(ctx context.Context, kind domain.Kind, id, actorID string, closed bool) (*domain.Listing, error) {
	if actorID == "" {
		return nil, apperrors.Unauthorized("caller identity is required")
	}

	changed := false
	updated, err := s.update(ctx, kind, id, func(l domain.Listing) (domain.Listing, bool, error) {
		if l.PostedBy.ID != actorID {
			return l, false, apperrors.Forbidden("only the poster can change this listing")
		}
		next, ok := domain.SetClosed(l, closed, s.now())
		changed = ok
		return next, ok, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	s.logger.InfoContext(ctx, "listing closed flag changed",
		slog.String("listing_id", id),
		slog.Bool("closed", closed),
	)
	if err := s.publisher.ListingClosed(ctx, updated); err != nil {
		s.logger.WarnContext(ctx, "failed to publish listing closed event",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
	return updated, nil
}

// mutateFunc derives the next listing value. write is false when nothing
// needs storing.
type mutateFunc func(l domain.Listing) (next domain.Listing, write bool, err error)

// update runs Get, fn and a versioned Replace, retrying on a conflict.
func (s *MarketplaceService) update(ctx context.Context, kind domain.Kind, id string, fn mutateFunc) (*domain.Listing, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("listing id is required")
	}
	store, err := s.stores.Store(kind)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		current, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		next, write, err := fn(*current)
		if err != nil {
			return nil, err
		}
		if !write {
			return current, nil
		}

		err = store.Replace(ctx, next, current.Version)
		if err == nil {
			next.Version = current.Version + 1
			return &next, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("replace listing: %w", err)
		}

		lastErr = err
		s.logger.DebugContext(ctx, "listing version conflict, retrying",
			slog.String("listing_id", id),
			slog.Int("attempt", attempt),
		)
	}
	return nil, lastErr
}
