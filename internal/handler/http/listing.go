package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bjamilk/campusmarket/internal/domain"
	"github.com/bjamilk/campusmarket/internal/repository"
	"github.com/bjamilk/campusmarket/internal/service"
	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
	"github.com/bjamilk/campusmarket/pkg/httputil"
	"github.com/bjamilk/campusmarket/pkg/middleware"
	"github.com/bjamilk/campusmarket/pkg/pagination"
	"github.com/bjamilk/campusmarket/pkg/validator"
)

// ListingHandler handles HTTP requests for listing endpoints.
type ListingHandler struct {
	service *service.MarketplaceService
	logger  *slog.Logger
}

// NewListingHandler creates a new listing HTTP handler.
func NewListingHandler(svc *service.MarketplaceService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateListingRequest is the JSON body for creating a listing.
type CreateListingRequest struct {
	Title       string         `json:"title" validate:"required,nonblank,max=200"`
	Description string         `json:"description" validate:"max=5000"`
	Attributes  map[string]any `json:"attributes"`
}

// SubmitReviewRequest is the JSON body for reviewing a listing.
type SubmitReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required,nonblank,max=2000"`
}

// ReportListingRequest is the JSON body for reporting a listing.
type ReportListingRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

// SetClosedRequest is the JSON body for the closed flag.
type SetClosedRequest struct {
	Closed *bool `json:"closed" validate:"required"`
}

// --- Handlers ---

// ListKinds handles GET /api/v1/kinds
func (h *ListingHandler) ListKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := domain.AllKinds()
	out := make([]KindView, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindView{Kind: k, TerminalLabel: k.TerminalLabel()})
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// CreateListing handles POST /api/v1/listings/{kind}
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req CreateListingRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := caller.Name
	if name == "" {
		name = caller.ID
	}
	l, err := h.service.CreateListing(r.Context(), service.CreateListingInput{
		Kind:        kind,
		Title:       req.Title,
		Description: req.Description,
		PosterID:    caller.ID,
		PosterName:  name,
		Attributes:  req.Attributes,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, toListingView(l))
}

// ListListings handles GET /api/v1/listings/{kind}
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	filter := repository.ListingFilter{Page: pagination.FromRequest(r)}
	if filter.Reported, err = boolQuery(r, "reported"); err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	if filter.Closed, err = boolQuery(r, "closed"); err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	listings, total, err := h.service.ListListings(r.Context(), kind, filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK,
		httputil.NewPaginatedResponse(toListingViews(listings), total, filter.Page.Page, filter.Page.PerPage))
}

// GetListing handles GET /api/v1/listings/{kind}/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	l, err := h.service.GetListing(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toListingView(l))
}

// SubmitReview handles POST /api/v1/listings/{kind}/{id}/reviews
func (h *ListingHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req SubmitReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	l, review, err := h.service.SubmitReview(r.Context(), kind, chi.URLParam(r, "id"), domain.NewReviewInput{
		ReviewerID:     caller.ID,
		ReviewerName:   caller.Name,
		ReviewerAvatar: caller.Avatar,
		Rating:         req.Rating,
		Comment:        req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, ReviewResult{Listing: toListingView(l), Review: *review})
}

// ReportListing handles POST /api/v1/listings/{kind}/{id}/reports
func (h *ListingHandler) ReportListing(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req ReportListingRequest
	if !h.decode(w, r, &req) {
		return
	}
	reason, err := domain.ParseReportReason(req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	ack, err := h.service.ReportListing(r.Context(), kind, chi.URLParam(r, "id"), domain.ReportInput{
		ReporterID: caller.ID,
		Reason:     reason,
		Comment:    req.Comment,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, ack)
}

// SetClosed handles PUT /api/v1/listings/{kind}/{id}/closed
func (h *ListingHandler) SetClosed(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req SetClosedRequest
	if !h.decode(w, r, &req) {
		return
	}

	l, err := h.service.SetClosed(r.Context(), kind, chi.URLParam(r, "id"), caller.ID, *req.Closed)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toListingView(l))
}

// --- Helpers ---

// decode reads and validates the body, writing the error response itself.
func (h *ListingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, h.logger)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	err := validator.DecodeAndValidate(w, r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, logger)
		return false
	}
	httputil.WriteBadRequest(w, r, "invalid request body")
	return false
}

func kindParam(r *http.Request) (domain.Kind, error) {
	raw := chi.URLParam(r, "kind")
	kind, err := domain.ParseKind(raw)
	if err != nil {
		return "", apperrors.NotFound("listing kind", raw)
	}
	return kind, nil
}

func boolQuery(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New(name + " must be true or false")
	}
	return &v, nil
}
