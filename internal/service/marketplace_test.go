package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	"github.com/bjamilk/campusmarket/internal/repository/memory"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
	"github.com/bjamilk/campusmarket/pkg/logger"
)

// --- Mocks ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) ListingCreated(ctx context.Context, l *domain.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockPublisher) ListingReviewed(ctx context.Context, l *domain.Listing, r *domain.Review) error {
	return m.Called(ctx, l, r).Error(0)
}

func (m *mockPublisher) ListingReported(ctx context.Context, l *domain.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockPublisher) ListingClosed(ctx context.Context, l *domain.Listing) error {
	return m.Called(ctx, l).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, l domain.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockStore) Get(ctx context.Context, id string) (*domain.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	l := args.Get(0).(domain.Listing)
	return &l, args.Error(1)
}

func (m *mockStore) List(ctx context.Context, f repository.ListingFilter) ([]domain.Listing, int, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]domain.Listing), args.Int(1), args.Error(2)
}

func (m *mockStore) Replace(ctx context.Context, l domain.Listing, expected int64) error {
	return m.Called(ctx, l, expected).Error(0)
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func newTestMarketplace(t *testing.T, stores *repository.Registry) (*MarketplaceService, *mockPublisher, *Metrics) {
	t.Helper()
	pub := &mockPublisher{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewMarketplaceService(stores, pub, metrics, logger.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, pub, metrics
}

func seed(t *testing.T, stores *repository.Registry, l domain.Listing) {
	t.Helper()
	store, err := stores.Store(l.Kind)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), l))
}

func seedListing(id string, kind domain.Kind, ratings ...int) domain.Listing {
	l := domain.Listing{
		ID:         id,
		Kind:       kind,
		Title:      id,
		PostedBy:   domain.Poster{ID: "poster", Name: "Ada"},
		PostedDate: fixedNow.Add(-time.Hour),
		Reviews:    []domain.Review{},
		Version:    1,
	}
	for i, r := range ratings {
		l.Reviews = append(l.Reviews, domain.Review{
			ID:         string(rune('a'+i)) + "-review",
			ListingID:  id,
			ReviewerID: string(rune('a' + i)),
			Rating:     r,
			Comment:    "seed",
		})
	}
	return l
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// --- Tests ---

func TestCreateListing(t *testing.T) {
	stores := memory.NewRegistry()
	svc, pub, metrics := newTestMarketplace(t, stores)
	pub.On("ListingCreated", mock.Anything, mock.AnythingOfType("*domain.Listing")).Return(nil)

	l, err := svc.CreateListing(context.Background(), CreateListingInput{
		Kind: domain.KindTextbook, Title: "Calculus 101", PosterID: "u1", PosterName: "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), l.Version)
	assert.Equal(t, fixedNow, l.PostedDate)

	got, err := svc.GetListing(context.Background(), domain.KindTextbook, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calculus 101", got.Title)
	assert.Equal(t, 1.0, counterValue(t, metrics.listingsCreated.WithLabelValues("textbook")))
	pub.AssertExpectations(t)
}

func TestCreateListing_InvalidInput(t *testing.T) {
	svc, pub, _ := newTestMarketplace(t, memory.NewRegistry())

	_, err := svc.CreateListing(context.Background(), CreateListingInput{Kind: "spaceship", Title: "x", PosterID: "u", PosterName: "n"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateListing(context.Background(), CreateListingInput{Kind: domain.KindClub, Title: "  ", PosterID: "u", PosterName: "n"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	pub.AssertNotCalled(t, "ListingCreated", mock.Anything, mock.Anything)
}

func TestCreateListing_PublishFailureIsNotReturned(t *testing.T) {
	svc, pub, _ := newTestMarketplace(t, memory.NewRegistry())
	pub.On("ListingCreated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	_, err := svc.CreateListing(context.Background(), CreateListingInput{
		Kind: domain.KindFood, Title: "Jollof", PosterID: "u1", PosterName: "Ada",
	})
	assert.NoError(t, err)
}

func TestSubmitReview_ThirdReviewRecomputesMean(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("pq1", domain.KindPastQuestion, 5, 4))
	svc, pub, metrics := newTestMarketplace(t, stores)
	pub.On("ListingReviewed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	l, r, err := svc.SubmitReview(context.Background(), domain.KindPastQuestion, "pq1", domain.NewReviewInput{
		ReviewerID: "newcomer", ReviewerName: "Bola", Rating: 3, Comment: "ok",
	})
	require.NoError(t, err)

	avg, ok := l.AverageRating()
	require.True(t, ok)
	assert.Equal(t, 4.0, avg)
	assert.Equal(t, 3, l.ReviewCount())
	assert.Equal(t, int64(2), l.Version)
	assert.Equal(t, fixedNow, r.Date)
	assert.Equal(t, 1.0, counterValue(t, metrics.reviews.WithLabelValues("past_question")))

	stored, err := svc.GetListing(context.Background(), domain.KindPastQuestion, "pq1")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ReviewCount())
	pub.AssertExpectations(t)
}

func TestSubmitReview_FirstReviewSetsRating(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("t1", domain.KindTutor))
	svc, pub, _ := newTestMarketplace(t, stores)
	pub.On("ListingReviewed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	before, err := svc.GetListing(context.Background(), domain.KindTutor, "t1")
	require.NoError(t, err)
	_, ok := before.AverageRating()
	assert.False(t, ok)

	l, _, err := svc.SubmitReview(context.Background(), domain.KindTutor, "t1", domain.NewReviewInput{
		ReviewerID: "u9", Rating: 5, Comment: "great tutor",
	})
	require.NoError(t, err)
	avg, ok := l.AverageRating()
	assert.True(t, ok)
	assert.Equal(t, 5.0, avg)
	assert.Equal(t, 1, l.ReviewCount())
}

func TestSubmitReview_DuplicateReviewer(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("pq1", domain.KindPastQuestion, 5))
	svc, pub, _ := newTestMarketplace(t, stores)

	_, _, err := svc.SubmitReview(context.Background(), domain.KindPastQuestion, "pq1", domain.NewReviewInput{
		ReviewerID: "a", Rating: 1, Comment: "again",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReview)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	stored, _ := svc.GetListing(context.Background(), domain.KindPastQuestion, "pq1")
	assert.Equal(t, 1, stored.ReviewCount())
	assert.Equal(t, int64(1), stored.Version)
	pub.AssertNotCalled(t, "ListingReviewed", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitReview_ValidationBeforeStoreAccess(t *testing.T) {
	store := &mockStore{}
	stores := repository.NewRegistry(func(domain.Kind) repository.ListingStore { return store })
	svc, _, _ := newTestMarketplace(t, stores)

	for _, in := range []domain.NewReviewInput{
		{ReviewerID: "u", Rating: 0, Comment: "x"},
		{ReviewerID: "u", Rating: 6, Comment: "x"},
		{ReviewerID: "u", Rating: 3, Comment: "   "},
	} {
		_, _, err := svc.SubmitReview(context.Background(), domain.KindTextbook, "b1", in)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestSubmitReview_NotFound(t *testing.T) {
	svc, _, _ := newTestMarketplace(t, memory.NewRegistry())
	_, _, err := svc.SubmitReview(context.Background(), domain.KindTextbook, "stale-id", domain.NewReviewInput{
		ReviewerID: "u", Rating: 4, Comment: "nice",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSubmitReview_RetriesOnConflict(t *testing.T) {
	store := &mockStore{}
	stores := repository.NewRegistry(func(domain.Kind) repository.ListingStore { return store })
	svc, pub, _ := newTestMarketplace(t, stores)
	pub.On("ListingReviewed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	v1 := seedListing("pq1", domain.KindPastQuestion, 5)
	v2 := seedListing("pq1", domain.KindPastQuestion, 5, 4)
	v2.Version = 2

	store.On("Get", mock.Anything, "pq1").Return(v1, nil).Once()
	store.On("Replace", mock.Anything, mock.Anything, int64(1)).Return(repository.ErrStaleVersion(domain.KindPastQuestion, "pq1", 1)).Once()
	store.On("Get", mock.Anything, "pq1").Return(v2, nil).Once()
	store.On("Replace", mock.Anything, mock.Anything, int64(2)).Return(nil).Once()

	l, _, err := svc.SubmitReview(context.Background(), domain.KindPastQuestion, "pq1", domain.NewReviewInput{
		ReviewerID: "z", Rating: 3, Comment: "fine",
	})
	require.NoError(t, err)
	avg, _ := l.AverageRating()
	assert.Equal(t, 4.0, avg)
	assert.Equal(t, int64(3), l.Version)
	store.AssertExpectations(t)
}

func TestSubmitReview_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &mockStore{}
	stores := repository.NewRegistry(func(domain.Kind) repository.ListingStore { return store })
	svc, _, _ := newTestMarketplace(t, stores)

	store.On("Get", mock.Anything, "pq1").Return(seedListing("pq1", domain.KindPastQuestion), nil)
	store.On("Replace", mock.Anything, mock.Anything, int64(1)).Return(repository.ErrStaleVersion(domain.KindPastQuestion, "pq1", 1))

	_, _, err := svc.SubmitReview(context.Background(), domain.KindPastQuestion, "pq1", domain.NewReviewInput{
		ReviewerID: "z", Rating: 3, Comment: "fine",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	store.AssertNumberOfCalls(t, "Replace", MaxUpdateAttempts)
}

func TestReportListing_ScamWithEmptyComment(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("sub2", domain.KindSublet))
	svc, pub, metrics := newTestMarketplace(t, stores)
	pub.On("ListingReported", mock.Anything, mock.Anything).Return(nil).Once()

	ack, err := svc.ReportListing(context.Background(), domain.KindSublet, "sub2", domain.ReportInput{
		ReporterID: "u2", Reason: domain.ReasonScam, Comment: "",
	})
	require.NoError(t, err)
	assert.False(t, ack.AlreadyReported)
	assert.Equal(t, domain.ModerationReported, ack.State)

	stored, _ := svc.GetListing(context.Background(), domain.KindSublet, "sub2")
	assert.True(t, stored.IsReported)
	require.NotNil(t, stored.Report)
	assert.Equal(t, "u2", stored.Report.ReporterID)
	assert.Equal(t, 1.0, counterValue(t, metrics.reports.WithLabelValues("sublet", "SCAM")))

	// A second report is acknowledged without changing anything.
	ack, err = svc.ReportListing(context.Background(), domain.KindSublet, "sub2", domain.ReportInput{
		ReporterID: "u3", Reason: domain.ReasonSpam,
	})
	require.NoError(t, err)
	assert.True(t, ack.AlreadyReported)

	again, _ := svc.GetListing(context.Background(), domain.KindSublet, "sub2")
	assert.Equal(t, "u2", again.Report.ReporterID)
	assert.Equal(t, stored.Version, again.Version)
	pub.AssertExpectations(t)
}

func TestReportListing_OtherRequiresComment(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("c1", domain.KindClub))
	svc, _, _ := newTestMarketplace(t, stores)

	_, err := svc.ReportListing(context.Background(), domain.KindClub, "c1", domain.ReportInput{
		ReporterID: "u2", Reason: domain.ReasonOther, Comment: "  ",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	stored, _ := svc.GetListing(context.Background(), domain.KindClub, "c1")
	assert.False(t, stored.IsReported)
}

func TestSetClosed(t *testing.T) {
	stores := memory.NewRegistry()
	seed(t, stores, seedListing("b1", domain.KindBikeScooter))
	svc, pub, _ := newTestMarketplace(t, stores)
	pub.On("ListingClosed", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.SetClosed(context.Background(), domain.KindBikeScooter, "b1", "someone-else", true)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	l, err := svc.SetClosed(context.Background(), domain.KindBikeScooter, "b1", "poster", true)
	require.NoError(t, err)
	assert.True(t, l.IsClosed)
	assert.Equal(t, int64(2), l.Version)

	// Unchanged flag: no write and no event.
	l, err = svc.SetClosed(context.Background(), domain.KindBikeScooter, "b1", "poster", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.Version)
	pub.AssertExpectations(t)
}

func TestListListings_UnknownKind(t *testing.T) {
	svc, _, _ := newTestMarketplace(t, memory.NewRegistry())
	_, _, err := svc.ListListings(context.Background(), "spaceship", repository.ListingFilter{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
