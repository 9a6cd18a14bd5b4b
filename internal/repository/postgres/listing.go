package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	"github.com/bjamilk/campusmarket/pkg/database"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

const listingColumns = `id, kind, title, description, poster_id, poster_name, posted_date,
	attributes, is_reported, report, is_closed, version, updated_at`

// ListingStore implements repository.ListingStore for one kind on PostgreSQL.
type ListingStore struct {
	pool database.DBTX
	kind domain.Kind
}

// NewListingStore creates a store for kind backed by pool.
func NewListingStore(pool database.DBTX, kind domain.Kind) *ListingStore {
	return &ListingStore{pool: pool, kind: kind}
}

// NewRegistry builds a registry of PostgreSQL stores sharing pool.
func NewRegistry(pool database.DBTX) *repository.Registry {
	return repository.NewRegistry(func(k domain.Kind) repository.ListingStore {
		return NewListingStore(pool, k)
	})
}

// Create inserts the listing and any reviews it already carries.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (err error) {
	const query = `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateListing", query)
	defer func() { end(err) }()

	attrs, report, err := encodeListing(l)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, query,
		l.ID, string(s.kind), l.Title, l.Description, l.PostedBy.ID, l.PostedBy.Name, l.PostedDate,
		attrs, l.IsReported, report, l.IsClosed, l.Version, l.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("listing", "id", l.ID)
		}
		return fmt.Errorf("insert listing: %w", err)
	}

	if err := insertReviews(ctx, tx, l.Reviews); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit listing: %w", err)
	}
	return nil
}

// Get loads a listing with its reviews in submission order.
func (s *ListingStore) Get(ctx context.Context, id string) (_ *domain.Listing, err error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 AND kind = $2`

	ctx, end := database.TraceQuery(ctx, "GetListing", query)
	defer func() { end(err) }()

	l, err := scanListing(s.pool.QueryRow(ctx, query, id, string(s.kind)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("listing", id)
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}

	reviews, err := s.reviewsFor(ctx, []string{l.ID})
	if err != nil {
		return nil, err
	}
	l.Reviews = reviews[l.ID]
	if l.Reviews == nil {
		l.Reviews = []domain.Review{}
	}
	return l, nil
}

// List returns one page of listings, newest first.
func (s *ListingStore) List(ctx context.Context, filter repository.ListingFilter) (_ []domain.Listing, _ int, err error) {
	const query = `
		SELECT ` + listingColumns + `, count(*) OVER() AS total_count
		FROM listings
		WHERE kind = $1
		  AND ($2::boolean IS NULL OR is_reported = $2)
		  AND ($3::boolean IS NULL OR is_closed = $3)
		ORDER BY posted_date DESC, id
		LIMIT $4 OFFSET $5`

	ctx, end := database.TraceQuery(ctx, "ListListings", query)
	defer func() { end(err) }()

	page := filter.PageParams()
	rows, err := s.pool.Query(ctx, query, string(s.kind), filter.Reported, filter.Closed, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var (
		listings []domain.Listing
		ids      []string
		total    int
	)
	for rows.Next() {
		l, err := scanListing(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listing row: %w", err)
		}
		listings = append(listings, *l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate listing rows: %w", err)
	}
	if len(listings) == 0 {
		return []domain.Listing{}, total, nil
	}

	reviews, err := s.reviewsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range listings {
		if rs := reviews[listings[i].ID]; rs != nil {
			listings[i].Reviews = rs
		} else {
			listings[i].Reviews = []domain.Review{}
		}
	}
	return listings, total, nil
}

// Replace writes l if the stored version is expectedVersion. Reviews are
// append-only, so existing review rows are left alone and new ones inserted.
func (s *ListingStore) Replace(ctx context.Context, l domain.Listing, expectedVersion int64) (err error) {
	const query = `
		UPDATE listings
		SET title = $1, description = $2, attributes = $3, is_reported = $4,
		    report = $5, is_closed = $6, updated_at = $7, version = version + 1
		WHERE id = $8 AND kind = $9 AND version = $10`

	ctx, end := database.TraceQuery(ctx, "ReplaceListing", query)
	defer func() { end(err) }()

	attrs, report, err := encodeListing(l)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query,
		l.Title, l.Description, attrs, l.IsReported, report, l.IsClosed, l.UpdatedAt,
		l.ID, string(s.kind), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1 AND kind = $2)`, l.ID, string(s.kind),
		).Scan(&exists); err != nil {
			return fmt.Errorf("check listing: %w", err)
		}
		if !exists {
			return apperrors.NotFound("listing", l.ID)
		}
		return repository.ErrStaleVersion(s.kind, l.ID, expectedVersion)
	}

	if err := insertReviews(ctx, tx, l.Reviews); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit listing: %w", err)
	}
	return nil
}

func insertReviews(ctx context.Context, tx pgx.Tx, reviews []domain.Review) error {
	const query = `
		INSERT INTO listing_reviews
			(id, listing_id, reviewer_id, reviewer_name, reviewer_avatar, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	for _, r := range reviews {
		_, err := tx.Exec(ctx, query,
			r.ID, r.ListingID, r.ReviewerID, r.ReviewerName, r.ReviewerAvatar, r.Rating, r.Comment, r.Date,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return domain.ErrDuplicateReview
			}
			return fmt.Errorf("insert review: %w", err)
		}
	}
	return nil
}

func (s *ListingStore) reviewsFor(ctx context.Context, listingIDs []string) (map[string][]domain.Review, error) {
	const query = `
		SELECT id, listing_id, reviewer_id, reviewer_name, reviewer_avatar, rating, comment, created_at
		FROM listing_reviews
		WHERE listing_id = ANY($1)
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Review, len(listingIDs))
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(
			&r.ID, &r.ListingID, &r.ReviewerID, &r.ReviewerName, &r.ReviewerAvatar,
			&r.Rating, &r.Comment, &r.Date,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		out[r.ListingID] = append(out[r.ListingID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return out, nil
}

func scanListing(row pgx.Row, extra ...any) (*domain.Listing, error) {
	var (
		l          domain.Listing
		kind       string
		attrs      []byte
		report     []byte
		postedDate time.Time
		updatedAt  time.Time
	)
	dest := []any{
		&l.ID, &kind, &l.Title, &l.Description, &l.PostedBy.ID, &l.PostedBy.Name, &postedDate,
		&attrs, &l.IsReported, &report, &l.IsClosed, &l.Version, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	l.Kind = domain.Kind(kind)
	l.PostedDate = postedDate.UTC()
	l.UpdatedAt = updatedAt.UTC()
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &l.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	if len(report) > 0 {
		if err := json.Unmarshal(report, &l.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	return &l, nil
}

func encodeListing(l domain.Listing) (attrs, report []byte, err error) {
	attrMap := l.Attributes
	if attrMap == nil {
		attrMap = map[string]any{}
	}
	if attrs, err = json.Marshal(attrMap); err != nil {
		return nil, nil, fmt.Errorf("encode attributes: %w", err)
	}
	if report, err = json.Marshal(l.Report); err != nil {
		return nil, nil, fmt.Errorf("encode report: %w", err)
	}
	return attrs, report, nil
}
