package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

// Prometheus implements ports.Metrics on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	issued     prometheus.Counter
	proofs     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	sessions   *prometheus.CounterVec
	providers  *prometheus.CounterVec
	handler    *prometheus.HistogramVec
}

func NewPrometheus(version string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_guard_challenges_issued_total",
			Help: "Total number of issued proof-of-work challenges",
		}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_guard_proof_verifications_total",
			Help: "Proof verifications by result",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_guard_gate_rejections_total",
			Help: "Requests rejected by the verification pipeline, by code",
		}, []string{"code"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_guard_session_events_total",
			Help: "Redirect session transitions",
		}, []string{"event"}),
		providers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_guard_provider_calls_total",
			Help: "Upstream shortener calls by provider and outcome",
		}, []string{"provider", "ok"}),
		handler: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "link_guard_http_request_seconds",
			Help:    "Time spent handling HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "link_guard_build_info",
		Help: "Build information",
	}, []string{"version"})
	build.WithLabelValues(version).Set(1)

	p.registry.MustRegister(p.issued, p.proofs, p.rejections, p.sessions, p.providers, p.handler, build)
	return p
}

func (p *Prometheus) ChallengeIssued() { p.issued.Inc() }

func (p *Prometheus) ProofVerified(reason string) { p.proofs.WithLabelValues(reason).Inc() }

func (p *Prometheus) GateRejected(code string) { p.rejections.WithLabelValues(code).Inc() }

func (p *Prometheus) SessionEvent(event string) { p.sessions.WithLabelValues(event).Inc() }

func (p *Prometheus) ProviderCall(provider string, ok bool) {
	p.providers.WithLabelValues(provider, strconv.FormatBool(ok)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Instrument records the duration of requests handled by next under route.
func (p *Prometheus) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		p.handler.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

var _ ports.Metrics = (*Prometheus)(nil)
