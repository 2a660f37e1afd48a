package targeting

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline activity on a private registry so repeated runners
// in one process never collide on registration.
type Metrics struct {
	registry   *prometheus.Registry
	normalized *prometheus.CounterVec
	dropped    prometheus.Counter
	extracted  *prometheus.CounterVec
	skipped    prometheus.Counter
	pageFails  prometheus.Counter
	pageTime   prometheus.Histogram
}

// NewMetrics registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		normalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyqa",
			Name:      "issues_normalized_total",
			Help:      "Issues produced by normalization, by report source.",
		}, []string{"source"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storyqa",
			Name:      "issues_deduplicated_total",
			Help:      "Issues removed as spatial duplicates.",
		}),
		extracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storyqa",
			Name:      "thumbnails_extracted_total",
			Help:      "Thumbnails written, by issue type.",
		}, []string{"type"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storyqa",
			Name:      "extractions_skipped_total",
			Help:      "Issues left without a thumbnail.",
		}),
		pageFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storyqa",
			Name:      "page_failures_total",
			Help:      "Pages whose processing failed.",
		}),
		pageTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storyqa",
			Name:      "page_duration_seconds",
			Help:      "Time spent deduplicating, extracting, and persisting one page.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(m.normalized, m.dropped, m.extracted, m.skipped, m.pageFails, m.pageTime)
	return m
}

// Registry exposes the collectors for callers that serve or gather them.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the current values in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
