package ocrsweep

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	pageStatusOk     = "ok"
	pageStatusFailed = "failed"
)

// SweepMetrics keeps its own registry so every sweep, and every test, starts
// from zero.
type SweepMetrics struct {
	Registry *prometheus.Registry

	pagesRasterized   prometheus.Gauge
	rasterizeDuration prometheus.Histogram
	pagesTotal        *prometheus.CounterVec
	ocrDuration       *prometheus.HistogramVec
	methodsCompleted  prometheus.Counter

	statusInFlight prometheus.Gauge
	statusRequests *prometheus.CounterVec
	statusDuration *prometheus.HistogramVec
}

func NewSweepMetrics() *SweepMetrics {
	m := &SweepMetrics{
		Registry: prometheus.NewRegistry(),
		pagesRasterized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocr_sweep_pages_rasterized",
			Help: "Number of pages rendered from the input PDF.",
		}),
		rasterizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocr_sweep_rasterize_duration_seconds",
			Help:    "Time spent rendering the input PDF into page images.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_sweep_pages_total",
				Help: "Pages recognized, partitioned by method and outcome.",
			},
			[]string{"method", "status"},
		),
		// per page latency, 600 dpi pages take seconds rather than milliseconds
		ocrDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_sweep_page_duration_seconds",
				Help:    "A histogram of preprocessing plus recognition time per page.",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"method"},
		),
		methodsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocr_sweep_methods_completed_total",
			Help: "Methods whose output file has been written.",
		}),
		statusInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocr_sweep_status_in_flight_requests",
			Help: "Number of status requests currently served.",
		}),
		statusRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_sweep_status_requests_total",
				Help: "A counter for requests to the status handler.",
			},
			[]string{"code", "method"},
		),
		statusDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_sweep_status_request_duration_seconds",
				Help:    "A histogram of latencies for status requests.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5},
			},
			[]string{"handler", "method"},
		),
	}
	m.Registry.MustRegister(
		m.pagesRasterized, m.rasterizeDuration, m.pagesTotal, m.ocrDuration, m.methodsCompleted,
		m.statusInFlight, m.statusRequests, m.statusDuration,
	)
	return m
}

func (m *SweepMetrics) observeRasterized(pages int, seconds float64) {
	m.pagesRasterized.Set(float64(pages))
	m.rasterizeDuration.Observe(seconds)
}

func (m *SweepMetrics) observePage(method string, failed bool, seconds float64) {
	status := pageStatusOk
	if failed {
		status = pageStatusFailed
	}
	m.pagesTotal.WithLabelValues(method, status).Inc()
	m.ocrDuration.WithLabelValues(method).Observe(seconds)
}

func (m *SweepMetrics) observeMethodCompleted() {
	m.methodsCompleted.Inc()
}

// WriteToTextfile dumps the registry in the node_exporter textfile format
func (m *SweepMetrics) WriteToTextfile(fileName string) error {
	return prometheus.WriteToTextfile(fileName, m.Registry)
}

// Handler serves the registry on /metrics
func (m *SweepMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// InstrumentStatusHandler wraps the status handler to provide prometheus metrics
func (m *SweepMetrics) InstrumentStatusHandler(statusHandler http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(m.statusInFlight,
		promhttp.InstrumentHandlerDuration(m.statusDuration.MustCurryWith(prometheus.Labels{"handler": "status"}),
			promhttp.InstrumentHandlerCounter(m.statusRequests, statusHandler),
		),
	)
}
