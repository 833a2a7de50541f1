package cmd

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// monitor serves run progress and sampler metrics over HTTP while chains run
type monitor struct {
	log      *zap.Logger
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
	stopped  chan struct{}

	Chains     prometheus.Gauge
	Iterations prometheus.Gauge
	Finished   prometheus.Counter
	RunTime    prometheus.Gauge
}

func newMonitor(log *zap.Logger) *monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &monitor{
		log:      log,
		registry: reg,
		Chains: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "adaptmc",
			Name:      "chains",
			Help:      "Number of chains in this run",
		}),
		Iterations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "adaptmc",
			Name:      "iterations_per_chain",
			Help:      "Requested iterations per chain",
		}),
		Finished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "adaptmc",
			Name:      "chains_finished_total",
			Help:      "Chains that ran to completion",
		}),
		RunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "adaptmc",
			Name:      "run_seconds",
			Help:      "Wall time of the last completed run",
		}),
	}
}

// Start begins serving /metrics on addr. The registry can be handed to
// sampler.NewMetrics before or after Start.
func (m *monitor) Start(addr string) error {
	if m.server != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "Could not listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	// Help the user and redirect to the only thing currently available
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusTemporaryRedirect)
	})

	m.listener = ln
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.stopped = make(chan struct{})

	go func() {
		defer close(m.stopped)
		if err := m.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.log.Warn("Metrics server failed", zap.Error(err))
		}
	}()

	m.log.Info("Metrics now available", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the address actually listened on, or "" before Start
func (m *monitor) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop shuts the server down, waiting up to two seconds
func (m *monitor) Stop() {
	if m.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Warn("Metrics server would NOT stop: just continuing on", zap.Error(err))
		return
	}
	<-m.stopped
	m.log.Info("Metrics server stopped")
}
