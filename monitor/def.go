package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"IntakeDetServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const sampleInterval = 500 * time.Millisecond

// Monitor owns a private Prometheus registry for the process and request
// gauges. A nil *Monitor is valid and records nothing.
type Monitor struct {
	registry *prometheus.Registry
	proc     *process.Process

	memUsage      prometheus.Gauge
	cpuUsage      prometheus.Gauge
	modelLoaded   prometheus.Gauge
	requestsTotal *prometheus.CounterVec
	grpcTotal     *prometheus.CounterVec
	detectedItems prometheus.Histogram
}

func New() (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process handle: %w", err)
	}
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		proc:     proc,
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "1 once the detection model is loaded",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"route", "code"}),
		grpcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests processed",
		}, []string{"method", "code"}),
		detectedItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detected_items",
			Help:    "Number of items detected per image",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
	m.registry.MustRegister(m.memUsage, m.cpuUsage, m.modelLoaded, m.requestsTotal, m.grpcTotal, m.detectedItems)
	return m, nil
}

func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Monitor) ObserveRPC(method, code string) {
	if m == nil {
		return
	}
	m.grpcTotal.WithLabelValues(method, code).Inc()
}

func (m *Monitor) ObserveDetection(count int) {
	if m == nil {
		return
	}
	m.detectedItems.Observe(float64(count))
}

func (m *Monitor) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.modelLoaded.Set(1)
		return
	}
	m.modelLoaded.Set(0)
}

// CheckProcessInfo samples resident memory and CPU for this process.
func (m *Monitor) CheckProcessInfo() {
	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(mem.RSS / 1024 / 1024))
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpu*100) / 100)
	}
}

// Start serves /metrics on port and samples the process until ctx is done.
func (m *Monitor) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Log().Info("Metrics server listening", zap.Int("port", port))

	m.CheckProcessInfo()
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("metrics server: %w", err)
			}
			break loop
		case <-ticker.C:
			m.CheckProcessInfo()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
