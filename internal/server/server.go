// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/service"
)

//go:embed templates/index.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/index.html"))

var validate = validator.New()

// Answerer is the part of the pipeline the handlers need.
type Answerer interface {
	Answer(ctx context.Context, question string) service.Result
}

// Server serves the chat page and the question endpoints.
type Server struct {
	cfg      config.ServerConfig
	answerer Answerer
	logger   *zap.Logger
	title    string
}

// New creates a Server. title is shown on the chat page.
func New(cfg config.ServerConfig, answerer Answerer, title string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if title == "" {
		title = "Knowledge Base Assistant"
	}
	return &Server{cfg: cfg, answerer: answerer, logger: logger, title: title}
}

// Routes builds the router with its middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	if d := s.cfg.RequestTimeout(); d > 0 {
		r.Use(middleware.Timeout(d))
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Post("/", s.handleChat)
	r.Post("/api/ask", s.handleAsk)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatResponse struct {
	Response string   `json:"response"`
	QueryID  string   `json:"query_id,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

type askRequest struct {
	Question string `json:"question" validate:"max=4000"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, struct{ Title string }{s.title}); err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

// handleChat keeps the form contract of the chat page: field user_message
// in, {"response": ...} out, always 200.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	res := s.answerer.Answer(r.Context(), r.FormValue("user_message"))
	s.writeJSON(w, http.StatusOK, chatResponse{Response: res.Answer, QueryID: res.QueryID})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "request body must be JSON with a question field"})
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "question is too long"})
		return
	}
	res := s.answerer.Answer(r.Context(), req.Question)
	out := chatResponse{Response: res.Answer, QueryID: res.QueryID}
	if res.Err == nil && res.Retrieval != nil {
		out.Sources = res.Retrieval.Passages
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
