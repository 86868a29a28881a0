package orchestration

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
)

type (
	// Server exposes a bot's eligibility/resume protocol over HTTP so peers
	// can orchestrate to it. Requests decode fail-soft and every exchange
	// produces a well-formed bot response: a garbled body or a failing local
	// bot degrades to the operation's sentinel status rather than an HTTP
	// error.
	Server struct {
		bot    BotClient
		logger telemetry.Logger
	}

	// ServerOption configures optional aspects of the Server.
	ServerOption func(*Server)
)

// WithServerLogger overrides the server's logger.
func WithServerLogger(logger telemetry.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server delegating to the given local bot.
func NewServer(bot BotClient, opts ...ServerOption) (*Server, error) {
	if bot == nil {
		return nil, errors.New("bot client is required")
	}
	s := &Server{bot: bot, logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Handler returns the HTTP handler serving the two wire operations.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orchestration/eligibility", s.handleEligibility)
	mux.HandleFunc("POST /orchestration/proxy", s.handleProxy)
	return mux
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req EligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn(ctx, "undecodable eligibility request", "error", err)
		s.respond(w, NoResponse(StatusNotAvailable, metadataOrZero(req.Metadata)))
		return
	}
	resp, err := s.bot.AskEligibility(ctx, req)
	if err != nil || resp.Kind() == BotUnknown {
		if err != nil {
			s.logger.Warn(ctx, "local bot eligibility failed", "error", err)
		}
		resp = NoResponse(StatusNotAvailable, metadataOrZero(req.Metadata))
	}
	s.logger.Debug(ctx, "eligibility answered",
		"bot", s.bot.Target().ID, "kind", int(resp.Kind()), "score", resp.Score())
	s.respond(w, resp)
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn(ctx, "undecodable resume request", "error", err)
		s.respond(w, NoResponse(StatusEnd, metadataOrZero(req.Metadata)))
		return
	}
	resp, err := s.bot.Resume(ctx, req)
	if err != nil || resp.Kind() == BotUnknown {
		if err != nil {
			s.logger.Warn(ctx, "local bot resume failed", "error", err)
		}
		resp = NoResponse(StatusEnd, metadataOrZero(req.Metadata))
	}
	s.respond(w, resp)
}

func (s *Server) respond(w http.ResponseWriter, resp SecondaryBotResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func metadataOrZero(md *Metadata) Metadata {
	if md != nil {
		return *md
	}
	return Metadata{}
}
