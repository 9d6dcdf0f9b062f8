// Package metrics exports ingestion, search and query statistics to Prometheus.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/policyrag/core"
	"github.com/poiesic/policyrag/rag"
	"github.com/poiesic/policyrag/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace     = "policyrag"
	otherLanguage = "other"
)

// Collectors holds the policyrag metrics registered on one registry.
type Collectors struct {
	QueryDuration      *prometheus.HistogramVec
	QueryTotal         *prometheus.CounterVec
	SourcesPerQuery    prometheus.Histogram
	SearchTotal        prometheus.Counter
	SearchScanned      prometheus.Histogram
	SkippedChunks      prometheus.Counter
	DocumentsProcessed *prometheus.CounterVec
	ChunksIndexed      prometheus.Counter
}

var (
	_ search.Monitor = (*Collectors)(nil)
	_ rag.Monitor    = (*Collectors)(nil)
)

// New creates the collectors and registers them on reg.
// Registering twice on the same registry panics.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query answering duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		QueryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_total",
				Help:      "Total number of queries answered",
			},
			[]string{"outcome", "language"},
		),
		SourcesPerQuery: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_sources_count",
				Help:      "Number of sources attached per answer",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		SearchTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Total number of vector searches",
			},
		),
		SearchScanned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_scanned_chunks",
				Help:      "Number of chunks compared per search",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SkippedChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_skipped_chunks_total",
				Help:      "Total unreadable chunks skipped during search",
			},
		),
		DocumentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Total documents that finished ingestion",
			},
			[]string{"status"},
		),
		ChunksIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Total chunks published by ingestion",
			},
		),
	}

	reg.MustRegister(
		c.QueryDuration,
		c.QueryTotal,
		c.SourcesPerQuery,
		c.SearchTotal,
		c.SearchScanned,
		c.SkippedChunks,
		c.DocumentsProcessed,
		c.ChunksIndexed,
	)
	return c
}

// Start implements search.Monitor.
func (c *Collectors) Start(k int) {
	c.SearchTotal.Inc()
}

// SkippedChunk implements search.Monitor.
func (c *Collectors) SkippedChunk(*core.CorruptChunkError) {
	c.SkippedChunks.Inc()
}

// Finish implements search.Monitor.
func (c *Collectors) Finish(scanned int, results []*core.SearchResult) {
	c.SearchScanned.Observe(float64(scanned))
}

// Answered implements rag.Monitor.
func (c *Collectors) Answered(outcome rag.Outcome, language string, elapsed time.Duration, sources int) {
	c.QueryTotal.WithLabelValues(string(outcome), languageLabel(language)).Inc()
	c.QueryDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	c.SourcesPerQuery.Observe(float64(sources))
}

// languageLabel bounds the language label to the supported codes.
func languageLabel(code string) string {
	if !rag.IsSupportedLanguage(code) {
		return otherLanguage
	}
	return strings.ToLower(strings.TrimSpace(code))
}

// DocumentFinished records a document reaching a terminal status.
// It has the signature of an ingestion observer.
func (c *Collectors) DocumentFinished(doc *core.Document) {
	c.DocumentsProcessed.WithLabelValues(doc.Status.String()).Inc()
	if doc.Status == core.StatusReady {
		c.ChunksIndexed.Add(float64(doc.ChunkCount))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
