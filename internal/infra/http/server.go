package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"companion-pipeline/internal/config"
	"companion-pipeline/internal/domain"
	"companion-pipeline/internal/domain/model"
	"companion-pipeline/internal/infra/logging"
	redisinfra "companion-pipeline/internal/infra/redis"
	"companion-pipeline/internal/infra/ws"
	"companion-pipeline/internal/usecase"
)

type Server struct {
	cfg     *config.Config
	genUC   usecase.GenerationUseCase
	events  *ws.Handler
	auth    *authManager
	limiter *redisinfra.RateLimiter
	log     *zerolog.Logger
	server  *http.Server
}

func NewServer(
	cfg *config.Config,
	genUC usecase.GenerationUseCase,
	events *ws.Handler,
	limiter *redisinfra.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		cfg:     cfg,
		genUC:   genUC,
		events:  events,
		auth:    newAuthManager(cfg.Server.JWTSecret),
		limiter: limiter,
		log:     logger,
	}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(s.log), recoverer(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth.requireAuth)
		r.Post("/api/v1/conversations/{conversationID}/jobs", s.handleSubmitJob)
		r.Get("/api/v1/conversations/{conversationID}/events", s.handleEvents)
		r.Get("/api/v1/jobs/{jobID}", s.handleGetJob)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Int("port", s.cfg.Server.Port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type submitJobRequest struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
}

type jobResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Operation      string     `json:"operation"`
	Status         string     `json:"status"`
	ResultRef      string     `json:"resultRef,omitempty"`
	Error          string     `json:"error,omitempty"`
	MessageID      string     `json:"messageId"`
	CreatedAt      time.Time  `json:"createdAt"`
	TerminalAt     *time.Time `json:"terminalAt,omitempty"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:             j.ID,
		ConversationID: j.ConversationID,
		Operation:      string(j.Operation),
		Status:         string(j.Status),
		ResultRef:      j.ResultRef,
		Error:          j.LastError,
		MessageID:      j.MessageID,
		CreatedAt:      j.CreatedAt,
		TerminalAt:     j.TerminalAt,
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester := userID(ctx)
	conversationID := chi.URLParam(r, "conversationID")
	ctx = logging.WithConversationID(ctx, conversationID)

	allowed, err := s.limiter.Allow(ctx, redisinfra.SubmitKey(requester),
		s.cfg.RateLimit.SubmitPerMinute, time.Minute)
	if err != nil {
		// A broken limiter should not take submissions down with it.
		s.log.Error().Err(err).Msg("rate limiter unavailable")
	} else if !allowed {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	op, err := model.ParseOperationKind(req.Operation)
	if err != nil {
		http.Error(w, "Unknown operation", http.StatusBadRequest)
		return
	}

	job, placeholder, err := s.genUC.SubmitJob(ctx, requester, conversationID, op, req.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := struct {
		Job     jobResponse     `json:"job"`
		Message messageResponse `json:"message"`
	}{
		Job: toJobResponse(job),
		Message: messageResponse{
			ID:             placeholder.ID,
			ConversationID: placeholder.ConversationID,
			State:          string(placeholder.State),
			CreatedAt:      placeholder.CreatedAt,
		},
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := s.genUC.GetJob(ctx, userID(ctx), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	s.events.Serve(w, r, conversationID)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidParams), errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrPaymentRequired):
		http.Error(w, "Insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
