package sim

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics publishes the tick pacer's per-tick stats as Prometheus gauges and
// exposes a read-only HTTP surface for operators, the concrete shape of
// spec.md §4.8's "external interface adapters" component. Bounded-cardinality
// metrics only, no per-entity labels, mirroring the discipline the pack's
// game-stream example applies to its own tick/player metrics.
type Metrics struct {
	global *Global

	tickDuration prometheus.Histogram
	mspt1s       prometheus.Gauge
	mspt5s       prometheus.Gauge
	tickTotal    prometheus.Counter
	playerCount  prometheus.Gauge
}

// NewMetrics registers the simulation core's Prometheus collectors against
// reg. Pass prometheus.DefaultRegisterer for process-wide registration, or a
// fresh *prometheus.Registry in tests to avoid collector-already-registered
// panics across test cases.
func NewMetrics(reg prometheus.Registerer, global *Global) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		global: global,
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hyperion_tick_duration_seconds",
			Help:    "Wall-clock duration of a single simulation tick.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.04, 0.05, 0.1},
		}),
		mspt1s: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hyperion_mspt_avg_1s",
			Help: "Mean tick duration in milliseconds over the last ~1 second window.",
		}),
		mspt5s: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hyperion_mspt_avg_5s",
			Help: "Mean tick duration in milliseconds over the last ~5 second window.",
		}),
		tickTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hyperion_tick_total",
			Help: "Total number of ticks completed.",
		}),
		playerCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hyperion_player_count",
			Help: "Current number of connected players.",
		}),
	}
}

// ObserveTick is passed to NewServer as its stats callback; it folds one
// StatsEvent into the registered gauges.
func (m *Metrics) ObserveTick(ev StatsEvent) {
	m.mspt1s.Set(ev.Mean1s)
	m.mspt5s.Set(ev.Mean5s)
	m.tickTotal.Inc()
	m.playerCount.Set(float64(m.global.PlayerCount()))
}

// ObserveTickDuration records the raw duration of a tick independently of
// the 1s/5s aggregation window, giving Prometheus its own histogram buckets
// to compute percentiles from. It is called once per tick, so it also
// advances the completed-tick counter.
func (m *Metrics) ObserveTickDuration(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
	m.tickTotal.Inc()
}

// statusResponse is the payload served at /stats.
type statusResponse struct {
	Tick        int64 `json:"tick"`
	PlayerCount int64 `json:"player_count"`
}

// Router builds the admin/metrics HTTP surface: /metrics for Prometheus
// scraping, /healthz for liveness probes, /stats for a minimal JSON snapshot.
// corsOrigins mirrors the pack's CORS allow-list pattern for admin surfaces
// that may be queried from a browser-based dashboard.
func (m *Metrics) Router(gatherer prometheus.Gatherer, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{
			Tick:        m.global.Tick(),
			PlayerCount: m.global.PlayerCount(),
		})
	})
	return r
}
