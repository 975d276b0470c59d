// Package chi exposes the query API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/interchange"
	logpkg "github.com/agrodocs/consulta/internal/logger"
	answeruc "github.com/agrodocs/consulta/internal/usecase/answer"
	healthuc "github.com/agrodocs/consulta/internal/usecase/health"
	"github.com/agrodocs/consulta/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// StatsProvider reports chunk index statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// Server handles the HTTP API routes.
type Server struct {
	answers       *answeruc.Service
	stats         StatsProvider
	health        *healthuc.Service
	manifestPath  string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	answers *answeruc.Service,
	stats StatsProvider,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answers: answers,
		stats:   stats,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		providerCallHandler,
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusServiceUnavailable, codeProviderUnavailable),
		sentinelHandler(domain.ErrUnknownProvider, http.StatusBadRequest, codeUnknownProvider),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeEmbeddingQuota),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// WithManifestPath points the stats endpoint at the last-ingest manifest.
func (s *Server) WithManifestPath(path string) *Server {
	s.manifestPath = path
	return s
}

// RegisterRoutes mounts all API routes on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/query", s.Query)
	r.Post("/api/v1/answer", s.Answer)
	r.Get("/api/v1/stats", s.Stats)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Query handles POST /api/v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())

	ans, err := s.answers.Ask(ctx, req.Question, askOptions(req))
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, answerToResponse(ans))
}

// Answer handles POST /api/v1/answer: the bare answer text for pipeline
// integrations that expect a plain string.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())

	ans, err := s.answers.Ask(ctx, req.Question, askOptions(req))
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	text := ans.Text()
	if req.OnlyRetrieve {
		previews := make([]string, 0, len(ans.Citations()))
		for _, c := range ans.Citations() {
			previews = append(previews, c.Preview())
		}
		text = strings.Join(previews, "\n")
	}
	if text == "" {
		text = answeruc.NoResultsAnswer
	}

	setEmbeddingHeaders(w, usage)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// Stats handles GET /api/v1/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	resp := statsResponse{
		Collection: stats.Collection,
		Chunks:     stats.Chunks,
	}
	if s.manifestPath != "" {
		if manifest, err := interchange.ReadManifest(s.manifestPath); err == nil {
			resp.LastIngest = &manifest
		} else if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("unreadable ingest manifest", zap.String("path", s.manifestPath), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:  string(report.Status),
		Version: version.String(),
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeQuery parses and validates the shared query/answer request body.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return queryRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return queryRequest{}, false
	}
	return req, true
}

// askOptions converts wire fields to usecase options. An explicit
// max_context below one is raised to one; absence keeps the default.
func askOptions(req queryRequest) answeruc.Options {
	opts := answeruc.Options{OnlyRetrieve: req.OnlyRetrieve}
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.MaxContext != nil {
		opts.MaxContext = *req.MaxContext
		if opts.MaxContext < 1 {
			opts.MaxContext = 1
		}
	}
	return opts
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrProviderUnavailable,
		domain.ErrProviderCall,
		domain.ErrUnknownProvider,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// providerCallHandler handles ErrProviderCall with the failing provider id.
func providerCallHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrProviderCall) {
		return false
	}
	var pce *domain.ProviderCallError
	if errors.As(err, &pce) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"code":     codeProviderError,
			"message":  msg,
			"provider": pce.Provider,
		})
		return true
	}
	writeError(w, http.StatusBadGateway, codeProviderError, msg)
	return true
}

// handleDomainError logs with the request-scoped logger so the warning
// carries the same request_id as the canonical log line.
func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	logpkg.FromContext(ctx, s.logger).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternal, msg)
}
