// Package server exposes the lending analytics over HTTP for the dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"infrafi/analytics"
	"infrafi/chain"
	"infrafi/gateway/middleware"
	"infrafi/native/lending"
	"infrafi/storage"
	"infrafi/subgraph"
)

// Indexer is the subset of the subgraph client the handlers read from.
type Indexer interface {
	Protocol(ctx context.Context) (subgraph.ProtocolSnapshot, error)
	UserPosition(ctx context.Context, address string) (subgraph.UserSnapshot, error)
	UserTimeline(ctx context.Context, address string, first int) (subgraph.Timeline, error)
	DailySnapshots(ctx context.Context, days int) ([]subgraph.DailySnapshot, error)
	RateSnapshots(ctx context.Context, first int) ([]subgraph.RateSnapshot, error)
}

// ChainReader reads live vault state. *chain.Reader satisfies it.
type ChainReader interface {
	ProtocolStats(ctx context.Context) chain.ProtocolStats
	UserPosition(ctx context.Context, address string) (chain.UserPosition, error)
	OwnerNodes(ctx context.Context, owner string) ([]chain.OortNode, error)
}

// StatsStore persists polled vault samples. *storage.Store satisfies it.
type StatsStore interface {
	RecordStats(ctx context.Context, stats chain.ProtocolStats) error
	LatestStats(ctx context.Context) (chain.ProtocolStats, error)
	StatsSince(ctx context.Context, since time.Time) ([]chain.ProtocolStats, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config wires the server dependencies. Indexer is required; Reader and
// Store are optional and disable live reads and history when nil.
type Config struct {
	Indexer Indexer
	Reader  ChainReader
	Store   StatsStore
	Cache   storage.Cache
	Params  lending.Params

	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimit

	PollInterval time.Duration
	Retention    time.Duration
	// CacheTTL limits how old a replayed response may be. Zero replays
	// any cached response.
	CacheTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server serves the dashboard API and runs the stats poller.
type Server struct {
	indexer Indexer
	reader  ChainReader
	store   StatsStore
	cache   storage.Cache
	params  lending.Params
	logger  *slog.Logger
	now     func() time.Time
	builder *analytics.Builder
	hub     *Hub

	pollInterval time.Duration
	retention    time.Duration
	cacheTTL     time.Duration
	lastPrune    time.Time

	obs     *middleware.Observability
	limiter *middleware.RateLimiter
	polls   *prometheus.CounterVec
	cors    middleware.CORSConfig
	router  http.Handler
}

var (
	errIndexerRequired = errors.New("dashboard: indexer is required")
	// errLiveReadsDisabled is returned by routes that need an RPC endpoint.
	errLiveReadsDisabled = errors.New("live chain reads are not configured")
)

// New constructs a configured HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Indexer == nil {
		return nil, errIndexerRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = storage.NewMemCache(storage.DefaultCacheEntries)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	cfg.Params.EnsureDefaults()

	limits := map[string]middleware.RateLimit{}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limits["api"] = cfg.RateLimit
	}

	srv := &Server{
		indexer:      cfg.Indexer,
		reader:       cfg.Reader,
		store:        cfg.Store,
		cache:        cfg.Cache,
		params:       cfg.Params,
		logger:       logger,
		now:          now,
		builder:      analytics.NewBuilder(cfg.Params.Decimals, now),
		hub:          NewHub(),
		pollInterval: cfg.PollInterval,
		retention:    cfg.Retention,
		cacheTTL:     cfg.CacheTTL,
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "dashboardd",
			Enabled:     true,
		}, logger),
		limiter: middleware.NewRateLimiter(limits, logger),
		cors:    cfg.CORS,
	}
	srv.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashboard",
		Name:      "stats_polls_total",
		Help:      "Vault stats polls by outcome.",
	}, []string{"result"})
	subscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dashboard",
		Name:      "stream_subscribers",
		Help:      "Open websocket stream subscriptions.",
	}, func() float64 { return float64(srv.hub.Len()) })
	srv.obs.Registry().MustRegister(srv.polls, subscribers)
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cors))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware("api"))
		api.With(s.obs.Middleware("protocol")).Get("/protocol", s.GetProtocol)
		api.With(s.obs.Middleware("protocol_params")).Get("/protocol/params", s.GetParams)
		api.With(s.obs.Middleware("protocol_history")).Get("/protocol/history", s.GetHistory)
		api.With(s.obs.Middleware("user_position")).Get("/users/{address}/position", s.GetUserPosition)
		api.With(s.obs.Middleware("user_timeline")).Get("/users/{address}/timeline", s.GetUserTimeline)
		api.With(s.obs.Middleware("user_performance")).Get("/users/{address}/performance", s.GetUserPerformance)
		api.With(s.obs.Middleware("user_nodes")).Get("/users/{address}/nodes", s.GetUserNodes)
		api.With(s.obs.Middleware("charts")).Get("/charts/{kind}", s.GetChart)
		api.With(s.obs.Middleware("amount_validate")).Post("/amounts/validate", s.ValidateAmount)
		api.With(s.obs.Middleware("amount_format")).Post("/amounts/format", s.FormatAmount)
		api.With(s.obs.Middleware("stream")).Get("/stream", s.Stream)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		s.logger.Warn("upstream request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrInvalidAddress), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, subgraph.ErrNotFound), errors.Is(err, storage.ErrNoStats):
		return http.StatusNotFound
	case errors.Is(err, errLiveReadsDisabled), errors.Is(err, chain.ErrNodeRegistryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

// serveCached answers with build's result and remembers it under key. When
// build fails with an upstream error the last good response younger than
// the cache TTL is replayed with an X-Cache header instead.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string, build func(ctx context.Context) (any, error)) {
	view, err := build(r.Context())
	if err == nil {
		if perr := storage.PutJSON(s.cache, key, view, s.now()); perr != nil {
			s.logger.Warn("cache write failed", "key", key, "error", perr)
		}
		s.writeJSON(w, http.StatusOK, view)
		return
	}
	if statusFor(err) != http.StatusBadGateway {
		s.writeError(w, err)
		return
	}
	entry, cerr := s.cache.Get(key)
	if cerr != nil || (s.cacheTTL > 0 && s.now().Sub(entry.StoredAt) > s.cacheTTL) {
		s.writeError(w, err)
		return
	}
	s.logger.Warn("serving cached response", "key", key, "stored_at", entry.StoredAt, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "stale")
	w.Header().Set("X-Cache-Stored-At", entry.StoredAt.Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Value)
}
