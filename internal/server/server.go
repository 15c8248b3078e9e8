// Package server exposes the document service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"docseek/internal/domain"
	"docseek/internal/metrics"
	"docseek/internal/query"
	"docseek/internal/service"
	"docseek/internal/textstore"
	"docseek/internal/vectorstore"
)

const maxBodyBytes = 1 << 20

// Service is the part of service.DocumentService the API calls.
type Service interface {
	Ingest(ctx context.Context, patterns []string) (*service.IngestReport, error)
	Ask(ctx context.Context, question string, multi bool, fn func(string) error) (*query.Answer, error)
	Retrieve(ctx context.Context, q string, k int) ([]domain.SearchResult, error)
	FullText(ctx context.Context, q string) ([]textstore.Hit, error)
	Len(ctx context.Context) (int, error)
}

type Server struct {
	svc     Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	topK    int
	handler http.Handler
}

func New(svc Service, m *metrics.Metrics, topK int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if topK <= 0 {
		topK = query.DefaultTopK
	}
	s := &Server{svc: svc, metrics: m, logger: logger, topK: topK}
	mux := http.NewServeMux()
	mux.Handle("POST /v1/ingest", s.instrument("ingest", s.handleIngest))
	mux.Handle("POST /v1/query", s.instrument("query", s.handleQuery))
	mux.Handle("GET /v1/search", s.instrument("search", s.handleSearch))
	mux.Handle("GET /healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("GET /metrics", m.Handler())
	s.handler = mux
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for up to ten seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.logger.Debug("http request",
			zap.String("route", route),
			zap.Int("code", rec.code),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

type queryRequest struct {
	Question   string `json:"question"`
	MultiQuery bool   `json:"multi_query"`
	Stream     bool   `json:"stream"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results,omitempty"`
	Hits    []textstore.Hit       `json:"hits,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("paths is required"))
		return
	}
	report, err := s.svc.Ingest(r.Context(), req.Paths)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, query.ErrEmptyQuestion)
		return
	}
	if !req.Stream {
		ans, err := s.svc.Ask(r.Context(), req.Question, req.MultiQuery, nil)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	send := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ans, err := s.svc.Ask(r.Context(), req.Question, req.MultiQuery, func(delta string) error {
		return send(map[string]string{"delta": delta})
	})
	if err != nil {
		s.logger.Warn("streamed query failed", zap.Error(err))
		_ = send(map[string]string{"error": err.Error()})
		return
	}
	_ = send(ans)
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	resp := searchResponse{Query: q}
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "vector":
		k := s.topK
		if v := r.URL.Query().Get("k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid k %q", v))
				return
			}
			k = n
		}
		res, err := s.svc.Retrieve(r.Context(), q, k)
		if err != nil {
			s.fail(w, err)
			return
		}
		resp.Results = res
	case "fulltext":
		hits, err := s.svc.FullText(r.Context(), q)
		if err != nil {
			s.fail(w, err)
			return
		}
		resp.Hits = hits
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown mode %q", mode))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Len(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": n})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrEmptyQuestion):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrFullTextDisabled):
		code = http.StatusNotImplemented
	case errors.Is(err, vectorstore.ErrNotLoaded):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, code, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
