package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"english-tutor/internal/domain"
	"english-tutor/internal/observability"
	"english-tutor/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20

	msgTokenFailed       = "Failed to generate token"
	msgGenerationFailed  = "Failed to generate response"
	msgTranslationFailed = "Failed to translate text"
	msgExplanationFailed = "Failed to generate explanation"
)

// Relay is the use case surface served over HTTP.
type Relay interface {
	Token(ctx context.Context) (json.RawMessage, error)
	Chat(ctx context.Context, in usecase.ChatInput) (string, error)
	Translate(ctx context.Context, text string) (string, error)
	Explain(ctx context.Context, in usecase.ExplainInput) (string, error)
}

type Server struct {
	relay       Relay
	metrics     *observability.Metrics
	logger      *slog.Logger
	allowOrigin string
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowOrigin enables CORS for a single browser origin. "*" allows any.
func WithAllowOrigin(origin string) Option {
	return func(s *Server) {
		s.allowOrigin = strings.TrimSpace(origin)
	}
}

func New(relay Relay, metrics *observability.Metrics, opts ...Option) (*Server, error) {
	if relay == nil {
		return nil, errors.New("httpapi: relay must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("httpapi: metrics must not be nil")
	}
	s := &Server{relay: relay, metrics: metrics, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type chatRequest struct {
	Messages    []domain.ChatMessage `json:"messages"`
	UserMessage string               `json:"userMessage"`
	ParseJSON   bool                 `json:"parseJSON"`
}

type translateRequest struct {
	Text string `json:"text"`
}

type explanationRequest struct {
	UserText string `json:"userText"`
	AIText   string `json:"aiText"`
}

type contentResponse struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Router serves every relay route both at the root and under /api.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.correlate)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Group(s.mountRelay)
	r.Route("/api", s.mountRelay)
	return r
}

func (s *Server) mountRelay(r chi.Router) {
	r.Use(s.instrument)
	r.Get("/token", s.handleToken)
	r.Post("/chat", s.handleChat)
	r.Post("/translate", s.handleTranslate)
	r.Post("/explanation", s.handleExplanation)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	raw, err := s.relay.Token(r.Context())
	if err != nil {
		s.logFailure(r, "/token", err)
		detail := "upstream request failed"
		var usecaseErr *usecase.Error
		if errors.As(err, &usecaseErr) && usecaseErr.Detail != "" {
			detail = usecaseErr.Detail
		}
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: msgTokenFailed, Details: detail})
		return
	}
	s.metrics.TokensIssued.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.relay.Chat(r.Context(), usecase.ChatInput{
		UserMessage: req.UserMessage,
		Messages:    req.Messages,
		ParseJSON:   req.ParseJSON,
	})
	if err != nil {
		s.fail(w, r, "/chat", msgGenerationFailed, err)
		return
	}
	respondJSON(w, http.StatusOK, contentResponse{Content: out})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.relay.Translate(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, "/translate", msgTranslationFailed, err)
		return
	}
	respondJSON(w, http.StatusOK, contentResponse{Content: out})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	var req explanationRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.relay.Explain(r.Context(), usecase.ExplainInput{UserText: req.UserText, AIText: req.AIText})
	if err != nil {
		s.fail(w, r, "/explanation", msgExplanationFailed, err)
		return
	}
	respondJSON(w, http.StatusOK, contentResponse{Content: out})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	err := decodeJSON(r, out)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errEmptyBody):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "request body is required"})
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
	}
	return false
}

// fail maps a use case error to the wire. Only validation failures reach the
// caller in detail; everything else is a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, route, generic string, err error) {
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) && usecaseErr.Code == usecase.ErrorInvalidInput {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: invalidInputMessage(usecaseErr.Reason)})
		return
	}
	s.logFailure(r, route, err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: generic})
}

func (s *Server) logFailure(r *http.Request, route string, err error) {
	code := string(usecase.ErrorInternal)
	reason := ""
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) {
		code = string(usecaseErr.Code)
		reason = usecaseErr.Reason
	}
	s.metrics.UpstreamErrors.WithLabelValues(route, code).Inc()
	s.logger.Error("relay request failed",
		"route", route,
		"code", code,
		"reason", reason,
		"correlation_id", correlationID(r.Context()),
		"err", err,
	)
}

func invalidInputMessage(reason string) string {
	switch reason {
	case "empty_message":
		return "userMessage or messages is required"
	case "message_missing_role":
		return "every message needs a role"
	case "empty_text":
		return "text is required"
	case "empty_ai_text":
		return "aiText is required"
	default:
		return "invalid request"
	}
}

type correlationKey struct{}

func correlationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}

func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.allowOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+correlationHeader)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Expose-Headers", correlationHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "/" + routeName(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status, time.Since(start))
		s.logger.Info("relay request",
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", correlationID(r.Context()),
		)
	})
}

// routeName collapses /x and /api/x into one label.
func routeName(r *http.Request) string {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = p
		}
	}
	pattern = strings.TrimPrefix(pattern, "/api")
	return strings.Trim(pattern, "/")
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
