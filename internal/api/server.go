package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftlist/internal/models"
	"github.com/Kerhoff/giftlist/internal/service"
)

// Options configures the HTTP surface.
type Options struct {
	ClientOrigin   string
	RateLimitRPS   float64
	RateLimitBurst int
	// Instrument wraps the route multiplexer, typically with metrics.
	Instrument func(http.Handler) http.Handler
}

// Server provides the HTTP API and the live update endpoint.
type Server struct {
	svc     *service.Service
	ws      http.Handler
	logger  *logrus.Logger
	mux     *http.ServeMux
	limiter *rateLimiter
	opts    Options
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, ws http.Handler, logger *logrus.Logger, opts Options) *Server {
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "*"
	}
	s := &Server{
		svc:     svc,
		ws:      ws,
		logger:  logger,
		mux:     http.NewServeMux(),
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		opts:    opts,
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.opts.Instrument != nil {
		h = s.opts.Instrument(h)
	}
	return chain(
		recovery(s.logger),
		requestID,
		accessLog(s.logger),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{s.opts.ClientOrigin},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
			MaxAge:         600,
		}),
	)(h)
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// API – Accounts
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/auth/me", s.requireAuth(s.handleMe))

	// API – Owner lists
	s.mux.Handle("GET /api/wishlists", s.requireAuth(s.handleGetLists))
	s.mux.Handle("POST /api/wishlists", s.requireAuth(s.handleCreateList))
	s.mux.Handle("GET /api/wishlists/{id}", s.requireAuth(s.handleGetList))
	s.mux.Handle("PATCH /api/wishlists/{id}", s.requireAuth(s.handleUpdateList))
	s.mux.Handle("POST /api/wishlists/{id}/items", s.requireAuth(s.handleAddItem))
	s.mux.Handle("PATCH /api/items/{id}", s.requireAuth(s.handleUpdateItem))

	// API – Shared pages
	s.mux.HandleFunc("GET /api/public/wishlists/{slug}", s.handleGetPublicList)
	s.mux.Handle("POST /api/public/items/{id}/reserve", s.limiter.wrap(s.optionalAuth(s.handleReserve), s.respondError))
	s.mux.Handle("POST /api/public/items/{id}/contribute", s.limiter.wrap(s.optionalAuth(s.handleContribute), s.respondError))

	// Live updates
	s.mux.Handle("GET /ws", s.ws)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondServiceError maps domain errors to HTTP responses. Unknown errors
// are logged and reported without detail.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respondError(w, http.StatusBadRequest, "validation_error", verr.Field+": "+verr.Message)
	case errors.Is(err, models.ErrValidation):
		s.respondError(w, http.StatusBadRequest, "validation_error", models.ErrValidation.Error())
	case errors.Is(err, models.ErrInvalidAmount):
		s.respondError(w, http.StatusBadRequest, "invalid_amount", models.ErrInvalidAmount.Error())
	case errors.Is(err, models.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, "unauthorized", models.ErrUnauthorized.Error())
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not_found", models.ErrNotFound.Error())
	case errors.Is(err, models.ErrAlreadyClaimed):
		s.respondError(w, http.StatusConflict, "already_claimed", models.ErrAlreadyClaimed.Error())
	case errors.Is(err, models.ErrAlreadyExists):
		s.respondError(w, http.StatusConflict, "already_exists", models.ErrAlreadyExists.Error())
	case errors.Is(err, models.ErrGroupFundingDisabled):
		s.respondError(w, http.StatusUnprocessableEntity, "group_funding_disabled", models.ErrGroupFundingDisabled.Error())
	case errors.Is(err, models.ErrBelowMinimum):
		s.respondError(w, http.StatusUnprocessableEntity, "below_minimum", models.ErrBelowMinimum.Error())
	case models.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		s.respondError(w, http.StatusServiceUnavailable, "transient", models.ErrTransient.Error())
	default:
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		s.respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, "request body is empty"
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// pathID extracts the {id} path value and converts it to int64.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, fmt.Errorf("missing id in path")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
