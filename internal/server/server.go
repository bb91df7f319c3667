// Package server is the transport layer: the synchronous request
// endpoint, the streaming fan-out endpoint, and the health probe. All
// trust decisions happen here or in the dispatcher; handlers behind it
// assume an already-admitted caller.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/protocol"
	"github.com/wardenhq/warden/internal/security"
)

const (
	apiKeyHeader = "X-API-Key"

	// Request bodies are single JSON envelopes; 1 MiB is generous.
	maxRequestBody = 1 << 20
)

// Server is the HTTP transport over the dispatcher.
type Server struct {
	config     *config.Config
	logger     logging.Logger
	dispatcher *protocol.Dispatcher
	guard      *security.Guard
	limiter    *security.RateLimiter
	hub        *Hub

	httpServer *http.Server
}

// New assembles the transport. The hub must be started separately via
// hub.Run.
func New(
	cfg *config.Config,
	logger logging.Logger,
	dispatcher *protocol.Dispatcher,
	guard *security.Guard,
	limiter *security.RateLimiter,
	hub *Hub,
) *Server {
	s := &Server{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		dispatcher: dispatcher,
		guard:      guard,
		limiter:    limiter,
		hub:        hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.Endpoint, s.handleRPC)
	mux.HandleFunc(cfg.Server.Endpoint+"/stream", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routing mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves until Shutdown. Bind failures are
// reported with enough detail to tell a busy port from a bad address,
// and nothing is left half-started: either the listener is up or the
// error is returned before any serving begins.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		if stderrors.Is(err, syscall.EADDRINUSE) {
			return errors.NewTransportError(errors.CodeBindFailed,
				fmt.Sprintf("port already in use: %s", s.httpServer.Addr), err)
		}
		return errors.NewTransportError(errors.CodeBindFailed,
			fmt.Sprintf("cannot bind %s (check server.host and server.port)", s.httpServer.Addr), err)
	}

	s.logger.Info(ctx, "listening",
		"addr", listener.Addr().String(),
		"endpoint", s.config.Server.Endpoint,
		"auth_enabled", s.config.Security.AuthEnabled)

	if err := s.httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.NewTransportError(errors.CodeBindFailed, "serve failed", err)
	}

	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopback(source string) bool {
	if source == "localhost" {
		return true
	}
	ip := net.ParseIP(source)
	return ip != nil && ip.IsLoopback()
}

// checkOrigin admits requests without an Origin header (non-browser
// clients) and browser requests from a configured origin. The origin
// restriction is opt-in: an empty allow-list restricts nothing.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.config.Server.AllowedOrigins) == 0 {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || (originURL.Scheme != "http" && originURL.Scheme != "https") {
		return false
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(originURL.Host, allowed) {
			return true
		}
	}

	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+apiKeyHeader)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	source := requestSource(r)

	if s.config.Server.LocalhostOnly && !isLoopback(source) {
		err := errors.NewTransportError(errors.CodeOriginDenied, "remote access disabled", nil).WithSource(source)
		logging.LogSecurityEvent(s.logger, r.Context(), err, "non_local_request", source, "transport")
		s.writeRejection(w, http.StatusForbidden, "remote access disabled")
		return
	}

	if !s.checkOrigin(r) {
		s.writeRejection(w, http.StatusForbidden, "origin not allowed")
		return
	}
	s.setCORSHeaders(w, r)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		s.writeRejection(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	// Credential check runs before the body is even read.
	authenticated := !s.config.Security.AuthEnabled
	if s.config.Security.AuthEnabled {
		outcome := s.guard.Verify(r.Context(), r.Header.Get(apiKeyHeader), source)
		if !outcome.Allowed() {
			s.writeOutcome(w, outcome)
			return
		}
		authenticated = true
	}

	if s.config.Security.RateLimit.Enabled {
		key := security.CategoryRequests + ":" + source
		perMinute := s.config.Security.RateLimit.RequestsPerMinute
		if !s.limiter.Allow(key, perMinute, security.PerMinute(perMinute)) {
			err := errors.NewRateLimitError(errors.CodeRateLimited, "request rate limit exceeded").WithSource(source)
			logging.LogSecurityEvent(s.logger, r.Context(), err, "request_rate_limited", source, security.CategoryRequests)
			s.writeError(w, http.StatusTooManyRequests, err)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.NewProtocolError(errors.CodeParseError, "unreadable request body", err))
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), body, protocol.Caller{
		Source:        source,
		Authenticated: authenticated,
	})
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Count(),
	})
}

func (s *Server) writeOutcome(w http.ResponseWriter, outcome security.Outcome) {
	switch outcome {
	case security.OutcomeBanned:
		s.writeError(w, http.StatusTooManyRequests,
			errors.NewRateLimitError(errors.CodeBanned, "source temporarily banned"))
	case security.OutcomeRateLimited:
		s.writeError(w, http.StatusTooManyRequests,
			errors.NewRateLimitError(errors.CodeRateLimited, "authentication rate limit exceeded"))
	default:
		s.writeError(w, http.StatusUnauthorized,
			errors.NewAuthenticationError(errors.CodeBadCredential, "invalid credentials"))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err *errors.WardenError) {
	s.writeJSON(w, status, &protocol.Response{
		JSONRPC: protocol.JSONRPCVersion,
		Error:   &protocol.ErrorObject{Code: err.RPCCode(), Message: err.Error()},
	})
}

func (s *Server) writeRejection(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	encoded, err := jsonMarshal(payload)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

func jsonMarshal(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
