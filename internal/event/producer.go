package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bjamilk/campusmarket/internal/domain"
	pkgkafka "github.com/bjamilk/campusmarket/pkg/kafka"
	"github.com/bjamilk/campusmarket/pkg/logger"
)

// Kafka topics for listing events.
const (
	TopicListingCreated  = "campusmarket.listing.created"
	TopicListingReviewed = "campusmarket.listing.reviewed"
	TopicListingReported = "campusmarket.listing.reported"
	TopicListingClosed   = "campusmarket.listing.closed"
)

// Source identifies this service in event envelopes.
const Source = "campusmarket"

// ListingCreatedData is the listing.created payload.
type ListingCreatedData struct {
	ListingID string      `json:"listing_id"`
	Kind      domain.Kind `json:"kind"`
	Title     string      `json:"title"`
	PosterID  string      `json:"poster_id"`
}

// ListingReviewedData is the listing.reviewed payload.
type ListingReviewedData struct {
	ListingID     string      `json:"listing_id"`
	Kind          domain.Kind `json:"kind"`
	ReviewID      string      `json:"review_id"`
	ReviewerID    string      `json:"reviewer_id"`
	Rating        int         `json:"rating"`
	AverageRating float64     `json:"average_rating"`
	ReviewCount   int         `json:"review_count"`
}

// ListingReportedData is the listing.reported payload.
type ListingReportedData struct {
	ListingID  string              `json:"listing_id"`
	Kind       domain.Kind         `json:"kind"`
	ReportID   string              `json:"report_id"`
	ReporterID string              `json:"reporter_id"`
	Reason     domain.ReportReason `json:"reason"`
}

// ListingClosedData is the listing.closed payload.
type ListingClosedData struct {
	ListingID string               `json:"listing_id"`
	Kind      domain.Kind          `json:"kind"`
	Closed    bool                 `json:"closed"`
	Label     domain.TerminalLabel `json:"label"`
}

// Sender delivers envelopes to a topic. *pkgkafka.Producer implements it.
type Sender interface {
	Publish(ctx context.Context, topic string, env *pkgkafka.Envelope) error
}

// Producer publishes listing events.
type Producer struct {
	sender Sender
	logger *slog.Logger
}

// NewProducer creates a listing event producer.
func NewProducer(sender Sender, logger *slog.Logger) *Producer {
	return &Producer{sender: sender, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, subject string, payload any) error {
	env, err := pkgkafka.NewEnvelope(topic, subject, Source, payload)
	if err != nil {
		return err
	}
	env.CorrelationID = logger.CorrelationIDFromContext(ctx)

	if err := p.sender.Publish(ctx, topic, env); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published listing event",
		slog.String("topic", topic),
		slog.String("listing_id", subject),
	)
	return nil
}

func (p *Producer) ListingCreated(ctx context.Context, l *domain.Listing) error {
	return p.publish(ctx, TopicListingCreated, l.ID, ListingCreatedData{
		ListingID: l.ID,
		Kind:      l.Kind,
		Title:     l.Title,
		PosterID:  l.PostedBy.ID,
	})
}

func (p *Producer) ListingReviewed(ctx context.Context, l *domain.Listing, r *domain.Review) error {
	avg, _ := l.AverageRating()
	return p.publish(ctx, TopicListingReviewed, l.ID, ListingReviewedData{
		ListingID:     l.ID,
		Kind:          l.Kind,
		ReviewID:      r.ID,
		ReviewerID:    r.ReviewerID,
		Rating:        r.Rating,
		AverageRating: avg,
		ReviewCount:   l.ReviewCount(),
	})
}

func (p *Producer) ListingReported(ctx context.Context, l *domain.Listing) error {
	data := ListingReportedData{ListingID: l.ID, Kind: l.Kind}
	if l.Report != nil {
		data.ReportID = l.Report.ID
		data.ReporterID = l.Report.ReporterID
		data.Reason = l.Report.Reason
	}
	return p.publish(ctx, TopicListingReported, l.ID, data)
}

func (p *Producer) ListingClosed(ctx context.Context, l *domain.Listing) error {
	return p.publish(ctx, TopicListingClosed, l.ID, ListingClosedData{
		ListingID: l.ID,
		Kind:      l.Kind,
		Closed:    l.IsClosed,
		Label:     l.Kind.TerminalLabel(),
	})
}

// NopPublisher drops every event. It is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) ListingCreated(context.Context, *domain.Listing) error { return nil }
func (NopPublisher) ListingReviewed(context.Context, *domain.Listing, *domain.Review) error {
	return nil
}
func (NopPublisher) ListingReported(context.Context, *domain.Listing) error { return nil }
func (NopPublisher) ListingClosed(context.Context, *domain.Listing) error   { return nil }
