package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence"
	"github.com/jpalmerr/cadence/clock"
	"github.com/jpalmerr/cadence/internal/poller"
	"github.com/jpalmerr/cadence/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler past shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Controller exposes the scheduler operations served by the API.
type Controller interface {
	Summary() poller.Summary
	Sessions() []poller.Session
	Restart(name string) error
	Pause(name string) error
}

// Config holds the dependencies of a [Server].
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// Title is reported by /api/info.
	Title string

	// StreamThrottle is the minimum spacing between two SSE flushes to one
	// client. Updates arriving inside the window are coalesced, keeping the
	// latest record per target. Zero streams every update.
	StreamThrottle time.Duration

	// Controller serves the session and control routes. Nil disables them.
	Controller Controller

	// Gatherer serves /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Clock drives stream throttling and relative timestamps. Defaults to
	// the real clock.
	Clock clock.Clock

	Logger zerolog.Logger
}

// Server serves the JSON API, the SSE stream and the metrics endpoint.
//
// Routes:
//   - GET /api/info: display title
//   - GET /api/status: latest record of every target
//   - GET /api/history?name=: retained records of one target
//   - GET /api/summary: debounced health counts
//   - GET /api/sessions: polling session of every target
//   - POST /api/targets/restart?name= and /api/targets/pause?name=
//   - GET /api/sse: record stream
//   - GET /metrics: Prometheus exposition
type Server struct {
	store  store.Store
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// StatusView is a [store.Record] with its check time rendered relative to
// the moment of the request.
type StatusView struct {
	store.Record
	CheckedAgo string `json:"checked_ago"`
}

// NewServer creates a [Server] reading from st. The server is not listening
// until [Server.Start].
func NewServer(st store.Store, cfg Config) *Server {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Server{
		store:  st,
		cfg:    cfg,
		clock:  c,
		logger: cfg.Logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the router with every configured route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/sse", s.handleSSE)

	if s.cfg.Controller != nil {
		mux.HandleFunc("/api/summary", s.handleSummary)
		mux.HandleFunc("/api/sessions", s.handleSessions)
		mux.HandleFunc("/api/targets/restart", s.handleControl(s.cfg.Controller.Restart))
		mux.HandleFunc("/api/targets/pause", s.handleControl(s.cfg.Controller.Pause))
	}
	if s.cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the port and serves in the background. Cancelling ctx shuts
// the server down gracefully, ending every SSE stream.
//
// Returns an error if the port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx, which stops SSE handlers on shutdown
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("server listening")

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown error")
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"title": s.cfg.Title})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := s.clock.Now()
	opts := cadence.DefaultFormatOptions()
	records := s.store.GetAll()
	views := make([]StatusView, 0, len(records))
	for _, rec := range records {
		views = append(views, StatusView{
			Record:     rec,
			CheckedAgo: cadence.FormatTimeAgo(rec.CheckedAt, now, opts),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	history := s.store.History(name)
	if history == nil {
		http.Error(w, fmt.Sprintf("no history for %q", name), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Controller.Summary())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Controller.Sessions())
}

// handleControl adapts a per-target control operation to a POST route.
func (s *Server) handleControl(op func(name string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing name parameter", http.StatusBadRequest)
			return
		}

		if err := op(name); err != nil {
			code := http.StatusConflict
			if errors.Is(err, poller.ErrUnknownTarget) {
				code = http.StatusNotFound
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// handleSSE streams records as Server-Sent Events.
//
// The current records are sent on connect. Later updates pass through a
// per-client [cadence.Throttled] counter: the leading update of a window is
// flushed at once, the rest are coalesced and flushed when the window closes.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug().Err(err).Msg("sse write deadlines not supported")
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	writeRecord := func(rec store.Record) error {
		data, err := json.Marshal(rec)
		if err != nil {
			s.logger.Error().Err(err).Str("target", rec.Name).Msg("failed to encode record")
			return nil
		}
		return writeAndFlush(data)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	flush := make(chan struct{}, 1)
	gate, err := cadence.NewThrottle(0, s.cfg.StreamThrottle,
		cadence.WithClock(s.clock),
		cadence.WithLogger(s.logger),
		cadence.OnCommit(func(int) {
			select {
			case flush <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		http.Error(w, "stream unavailable", http.StatusInternalServerError)
		return
	}
	defer gate.Close()

	// send headers so the client sees the subscription before any record
	if err := rc.Flush(); err != nil {
		return
	}

	for _, rec := range s.store.GetAll() {
		if err := writeRecord(rec); err != nil {
			return
		}
	}

	pending := make(map[string]store.Record)
	seq := 0
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			pending[rec.Name] = rec
			seq++
			gate.Set(seq)

		case <-flush:
			for _, rec := range drain(pending) {
				if err := writeRecord(rec); err != nil {
					return
				}
			}

		case <-r.Context().Done():
			return
		}
	}
}

// drain empties pending and returns its records ordered by name.
func drain(pending map[string]store.Record) []store.Record {
	records := make([]store.Record, 0, len(pending))
	for name, rec := range pending {
		records = append(records, rec)
		delete(pending, name)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}
