// Package httpapi exposes the quota service over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ineyio/vidquota"
	"github.com/ineyio/vidquota/script"
)

// Server serves the video quota API.
type Server struct {
	svc      *vidquota.Service
	writer   *script.Writer
	validate *validator.Validate
	logger   zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithScriptWriter mounts POST /api/script/create backed by w.
func WithScriptWriter(w *script.Writer) Option {
	return func(s *Server) { s.writer = w }
}

// WithLogger sets the request and error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server for svc.
func New(svc *vidquota.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, CORS-enabled handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/video/quota", s.getQuota)
		r.Post("/video/recharge", s.recharge)
		r.Post("/video/generate", s.generate)
		if s.writer != nil {
			r.Post("/script/create", s.createScript)
		}
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, msgNotFound, nil)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

type rechargeRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Months int    `json:"months"`
}

type generateRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Model        string `json:"model"`
	DigitalHuman string `json:"digital_human"`
	VoiceStyle   string `json:"voice_style"`
	Script       string `json:"script" validate:"required"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, msgOK, map[string]string{"status": "ok"})
}

func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.GetQuota(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgQueried, snap)
}

func (s *Server) recharge(w http.ResponseWriter, r *http.Request) {
	var req rechargeRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.svc.ActivateMembership(r.Context(), req.UserID, req.Months)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgActivated, res)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.svc.GenerateVideo(r.Context(), vidquota.GenerateRequest{
		UserID:       req.UserID,
		Model:        req.Model,
		DigitalHuman: req.DigitalHuman,
		VoiceStyle:   req.VoiceStyle,
		Script:       req.Script,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgGenerated, res)
}

func (s *Server) createScript(w http.ResponseWriter, r *http.Request) {
	var req script.Request
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.writer.Write(r.Context(), req)
	if err != nil {
		if vidquota.IsProviderFailure(err) {
			s.logger.Warn().Err(err).Msg("script generation failed")
			writeJSON(w, http.StatusBadGateway, msgTextProviderError, nil)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgScriptCreated, res)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, msgMissingParams, nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, msgMissingParams, nil)
			return false
		}
		s.writeError(w, r, err)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg, data := errorResponse(err)
	ev := s.logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("code", code).
		Msg("request failed")
	writeJSON(w, code, msg, data)
}
