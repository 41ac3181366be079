// Package web serves the tool surface over HTTP and streams the sync journal.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/coinbook/internal/errs"
	"github.com/vadiminshakov/coinbook/internal/services/portfolio"
	"github.com/vadiminshakov/coinbook/internal/storage/journal"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 20 * time.Second
	maxRequestBody      = 1 << 20
)

// Tools is the operation set exposed by the server.
type Tools interface {
	Health() portfolio.HealthOut
	GetBalances(ctx context.Context) (portfolio.BalancesOut, error)
	UpsertHoldings(ctx context.Context, in portfolio.UpsertIn) (portfolio.UpsertOut, error)
	PortfolioReport(ctx context.Context) (portfolio.ReportOut, error)
}

type journalReader interface {
	EntriesAfter(index uint64) ([]journal.Record, error)
}

// Server exposes the tools as JSON endpoints and the journal as an SSE stream.
type Server struct {
	Addr    string
	Tools   Tools
	Journal journalReader

	logger       *zap.Logger
	pollInterval time.Duration
}

// NewServer creates a server. entries may be nil, in which case the stream answers 503.
func NewServer(addr string, tools Tools, entries journalReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:         addr,
		Tools:        tools,
		Journal:      entries,
		logger:       logger,
		pollInterval: journalPollInterval,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /balances", s.handleBalances)
	mux.HandleFunc("POST /holdings", s.handleUpsert)
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /journal/stream", s.handleJournalStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("tool server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with ACME certificates for domains.
// An HTTP server on :80 answers the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server", zap.Error(err))
		}
	}()

	s.logger.Info("tool server listening with TLS", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Tools.Health())
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	out, err := s.Tools.GetBalances(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, errs.InvalidArgument("upsert holdings", errs.WithCause(err)))
		return
	}
	var in portfolio.UpsertIn
	if err := json.Unmarshal(body, &in); err != nil {
		s.writeError(w, errs.InvalidArgument("upsert holdings", errs.WithMessage("malformed body"), errs.WithCause(err)))
		return
	}

	out, err := s.Tools.UpsertHoldings(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	out, err := s.Tools.PortfolioReport(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJournalStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	lastIndex := s.parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendEntries := func() error {
		records, err := s.Journal.EntriesAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: upsert\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendEntries(); err != nil {
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		s.logger.Error("journal stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEntries(); err != nil {
				s.logger.Warn("journal stream poll", zap.Error(err))
			}
		}
	}
}

// parseLastEventID reads the resume index from the Last-Event-ID header, falling back to a query parameter.
func (s *Server) parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		s.logger.Warn("invalid last event id", zap.String("id", idStr), zap.Error(err))
		return 0
	}
	return id
}

type errorBody struct {
	Error     string    `json:"error"`
	Kind      errs.Kind `json:"kind"`
	Processed *int      `json:"processed,omitempty"`
}

// statusFor maps an error kind to the HTTP status returned to callers.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindAuthentication, errs.KindDataIntegrity, errs.KindReconciliation:
		return http.StatusBadGateway
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	if n, ok := errs.Processed(err); ok {
		body.Processed = &n
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("tool call failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
