// Package metrics holds the Prometheus collectors exported by docseek.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics registers its collectors on a private registry so several
// instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	FilesIngested  *prometheus.CounterVec
	ChunksIngested prometheus.Counter
	IngestDuration prometheus.Histogram
	Queries        *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	RetrievedDocs  prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	StoredChunks   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FilesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docseek_ingested_files_total",
			Help: "Files processed by ingestion, by outcome",
		}, []string{"status"}),
		ChunksIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "docseek_ingested_chunks_total",
			Help: "Chunks added to the vector store",
		}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docseek_ingest_file_duration_seconds",
			Help:    "Time spent loading, embedding and saving one file",
			Buckets: latencyBuckets,
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docseek_queries_total",
			Help: "Questions answered, by mode and status",
		}, []string{"mode", "status"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docseek_query_duration_seconds",
			Help:    "End to end question latency by mode",
			Buckets: latencyBuckets,
		}, []string{"mode"}),
		RetrievedDocs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docseek_retrieved_documents",
			Help:    "Documents passed to the model per question",
			Buckets: prometheus.LinearBuckets(0, 10, 8),
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docseek_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docseek_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: latencyBuckets,
		}, []string{"route"}),
		StoredChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "docseek_stored_chunks",
			Help: "Records in the vector store after the last ingestion",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuery records one answered question.
func (m *Metrics) ObserveQuery(mode string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Queries.WithLabelValues(mode, status).Inc()
	m.QueryDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
