package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	"github.com/bjamilk/campusmarket/pkg/database"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
	"github.com/bjamilk/campusmarket/pkg/pagination"
)

var now = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

var listingCols = []string{
	"id", "kind", "title", "description", "poster_id", "poster_name", "posted_date",
	"attributes", "is_reported", "report", "is_closed", "version", "updated_at",
}

var reviewCols = []string{
	"id", "listing_id", "reviewer_id", "reviewer_name", "reviewer_avatar", "rating", "comment", "created_at",
}

func setupStore(t *testing.T) (*ListingStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewListingStore(mock, domain.KindPastQuestion), mock
}

func listingRow(id string, reported bool, report string, version int64) []any {
	return []any{
		id, "past_question", "CSC201 2019 paper", "", "u1", "Ada", now,
		[]byte(`{"course":"CSC201"}`), reported, []byte(report), false, version, now,
	}
}

func sampleListing() domain.Listing {
	return domain.Listing{
		ID: "pq1", Kind: domain.KindPastQuestion, Title: "CSC201 2019 paper",
		PostedBy: domain.Poster{ID: "u1", Name: "Ada"}, PostedDate: now,
		Reviews: []domain.Review{}, Version: 1, UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestListingStore_Get_WithReviews(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery("SELECT id, kind").
		WithArgs("pq1", "past_question").
		WillReturnRows(pgxmock.NewRows(listingCols).AddRow(listingRow("pq1", false, "null", 3)...))
	mock.ExpectQuery(`(?s)FROM listing_reviews.*ORDER BY seq`).
		WithArgs([]string{"pq1"}).
		WillReturnRows(pgxmock.NewRows(reviewCols).
			AddRow("r1", "pq1", "a", "Ade", "", 5, "great", now).
			AddRow("r2", "pq1", "b", "Bisi", "", 4, "good", now.Add(time.Minute)))

	got, err := store.Get(context.Background(), "pq1")
	require.NoError(t, err)

	assert.Equal(t, domain.KindPastQuestion, got.Kind)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "CSC201", got.Attributes["course"])
	assert.Nil(t, got.Report)
	avg, ok := got.AverageRating()
	require.True(t, ok)
	assert.Equal(t, 4.5, avg)
	assert.Equal(t, 2, got.ReviewCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Get_DecodesReport(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery("SELECT id, kind").
		WithArgs("pq1", "past_question").
		WillReturnRows(pgxmock.NewRows(listingCols).
			AddRow(listingRow("pq1", true, `{"id":"rep1","reason":"SCAM","reporter_id":"u9"}`, 2)...))
	mock.ExpectQuery(`(?s)FROM listing_reviews.*ORDER BY seq`).
		WithArgs([]string{"pq1"}).
		WillReturnRows(pgxmock.NewRows(reviewCols))

	got, err := store.Get(context.Background(), "pq1")
	require.NoError(t, err)
	assert.True(t, got.IsReported)
	require.NotNil(t, got.Report)
	assert.Equal(t, domain.ReasonScam, got.Report.Reason)
	assert.NotNil(t, got.Reviews)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Get_NotFound(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery("SELECT id, kind").
		WithArgs("nope", "past_question").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestListingStore_Create(t *testing.T) {
	store, mock := setupStore(t)
	l := sampleListing()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WithArgs("pq1", "past_question", l.Title, "", "u1", "Ada", now,
			[]byte(`{}`), false, []byte(`null`), false, int64(1), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Create(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Create_Duplicate(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "listings_pkey"})
	mock.ExpectRollback()

	err := store.Create(context.Background(), sampleListing())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Create_ErrorMentioningSQLState(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WillReturnError(errors.New("dial tcp 10.0.0.5:23505: connection refused"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), sampleListing())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Replace
// ---------------------------------------------------------------------------

func TestListingStore_Replace_AppendsReview(t *testing.T) {
	store, mock := setupStore(t)

	l := sampleListing()
	next, r, err := domain.AppendReview(l, domain.NewReviewInput{ReviewerID: "c", ReviewerName: "Chidi", Rating: 3, Comment: "ok"}, now)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").
		WithArgs(l.Title, "", pgxmock.AnyArg(), false, []byte(`null`), false, pgxmock.AnyArg(), "pq1", "past_question", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO listing_reviews").
		WithArgs(r.ID, "pq1", "c", "Chidi", "", 3, "ok", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Replace(context.Background(), next, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Replace_StaleVersion(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("pq1", "past_question").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.Replace(context.Background(), sampleListing(), 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Replace_NotFound(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("pq1", "past_question").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := store.Replace(context.Background(), sampleListing(), 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_Replace_DuplicateReviewerIndex(t *testing.T) {
	store, mock := setupStore(t)

	next, _, err := domain.AppendReview(sampleListing(), domain.NewReviewInput{ReviewerID: "c", Rating: 3, Comment: "ok"}, now)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO listing_reviews").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_listing_reviews_reviewer"})
	mock.ExpectRollback()

	err = store.Replace(context.Background(), next, 1)
	assert.ErrorIs(t, err, domain.ErrDuplicateReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListingStore_List(t *testing.T) {
	store, mock := setupStore(t)
	reported := true

	cols := append(append([]string{}, listingCols...), "total_count")
	mock.ExpectQuery("FROM listings").
		WithArgs("past_question", &reported, (*bool)(nil), 10, 10).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(append(listingRow("pq7", true, "null", 2), 11)...))
	mock.ExpectQuery(`(?s)FROM listing_reviews.*ORDER BY seq`).
		WithArgs([]string{"pq7"}).
		WillReturnRows(pgxmock.NewRows(reviewCols).AddRow("r1", "pq7", "a", "Ade", "", 2, "meh", now))

	got, total, err := store.List(context.Background(), repository.ListingFilter{
		Reported: &reported,
		Page:     pagination.Params{Page: 2, PerPage: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ReviewCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingStore_List_Empty(t *testing.T) {
	store, mock := setupStore(t)

	cols := append(append([]string{}, listingCols...), "total_count")
	mock.ExpectQuery("FROM listings").
		WillReturnRows(pgxmock.NewRows(cols))

	got, total, err := store.List(context.Background(), repository.ListingFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
