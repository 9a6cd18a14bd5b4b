package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bjamilk/campusmarket/internal/service"
	"github.com/bjamilk/campusmarket/pkg/httputil"
	"github.com/bjamilk/campusmarket/pkg/middleware"
)

// CompanionHandler handles HTTP requests for the study companion.
type CompanionHandler struct {
	service *service.CompanionService
	logger  *slog.Logger
}

// NewCompanionHandler creates a new companion HTTP handler.
func NewCompanionHandler(svc *service.CompanionService, logger *slog.Logger) *CompanionHandler {
	return &CompanionHandler{
		service: svc,
		logger:  logger,
	}
}

// SendMessageRequest is the JSON body for a companion message.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required,nonblank,max=4000"`
}

// SendMessageResponse carries the companion's reply.
type SendMessageResponse struct {
	Reply string `json:"reply"`
}

// Status handles GET /api/v1/companion/status
func (h *CompanionHandler) Status(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteData(w, http.StatusOK, map[string]bool{"available": h.service.Available()})
}

// StartSession handles POST /api/v1/companion/sessions
func (h *CompanionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	session, err := h.service.StartSession(r.Context(), caller.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, toSessionView(session))
}

// GetSession handles GET /api/v1/companion/sessions/{sessionId}
func (h *CompanionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	session, err := h.service.Session(chi.URLParam(r, "sessionId"), caller.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toSessionView(session))
}

// SendMessage handles POST /api/v1/companion/sessions/{sessionId}/messages
func (h *CompanionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req SendMessageRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	reply, err := h.service.Send(r.Context(), chi.URLParam(r, "sessionId"), caller.ID, req.Message)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, SendMessageResponse{Reply: reply})
}
