package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger             *zap.Logger
	config             *Config
	stats              *Statistics
	mode               *Maintenance
	clock              Clocker
	idsHandler         UIDHandler
	validator          *Validator
	verifier           *TokenVerifier
	metrics            *Metrics
	bookService        BookServiceProvider
	reservationService ReservationServiceProvider
	cache              *ViewCache
	notifier           Notifier
}

// NewAPIHandler provides a new instance of APIHandler. The cache and the notifier
// are optional: without cache reads go to the services, without notifier the
// changes stream is unavailable.
func NewAPIHandler(
	logger *zap.Logger,
	config *Config,
	stats *Statistics,
	clock Clocker,
	idsHandler UIDHandler,
	bs BookServiceProvider,
	rs ReservationServiceProvider,
	cache *ViewCache,
	notifier Notifier,
	metrics *Metrics,
) *APIHandler {
	if config == nil {
		config = &Config{}
	}
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:             logger,
		config:             config,
		stats:              stats,
		mode:               &Maintenance{},
		clock:              clock,
		idsHandler:         idsHandler,
		validator:          NewValidator(),
		verifier:           NewTokenVerifier(config.Auth.JWTSecret, config.Auth.Issuer),
		metrics:            metrics,
		bookService:        bs,
		reservationService: rs,
		cache:              cache,
		notifier:           notifier,
	}
}

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(
		StatusResponse{
			RequestID: requestID,
			Status:    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
			Message:   "Hello. Library reservation api is available. Enjoy :)",
		},
	); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// NotFound is the handler used by the router when no route matches.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := api.idsHandler.Generate(RequestIDPrefix)
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(
			map[string]string{
				"requestid": requestID,
				"message":   "route does not exist",
				"path":      r.Method + " " + r.URL.Path,
			},
		); err != nil {
			api.logger.Error("failed to send not found response", zap.String("request.id", requestID), zap.Error(err))
		}
	})
}

// sendError logs the failure and sends the error response.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, errResp *APIError, logMsg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("request.id", errResp.RequestID), zap.Error(err))
	api.logger.Error(logMsg, fields...)
	if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
		api.logger.Error("failed to send error response", zap.String("request.id", errResp.RequestID), zap.Error(err))
	}
}

// sendResponse sends a success response.
func (api *APIHandler) sendResponse(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send response", zap.String("request.id", resp.RequestID), zap.Error(err))
	}
}
