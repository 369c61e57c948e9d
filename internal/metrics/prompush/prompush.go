// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Pushgateway fits run-to-completion jobs: collectors accumulate locally and
// Flush pushes the whole registry under the job name. Nothing leaves the
// process between flushes.
package prompush

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"musicetl/internal/metrics"
)

// Backend implements metrics.Backend by pushing a private registry to a
// Pushgateway.
type Backend struct {
	pusher *push.Pusher
	reg    *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewBackend creates a backend pushing under jobName to the Pushgateway at
// baseURL (e.g. "http://localhost:9091").
func NewBackend(jobName, baseURL string) (*Backend, error) {
	if jobName == "" {
		return nil, fmt.Errorf("prompush: job name is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("prompush: pushgateway URL is required")
	}

	reg := prometheus.NewRegistry()
	return &Backend{
		pusher:     push.New(baseURL, jobName).Gatherer(reg),
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}, nil
}

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// sanitize maps dotted metric names onto the Prometheus naming charset.
func sanitize(name string) string {
	return invalidMetricChars.ReplaceAllString(name, "_")
}

// labelsFromTags converts "key:value" tags into Prometheus const labels.
// Tags without a colon are dropped.
func labelsFromTags(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return nil
	}
	out := prometheus.Labels{}
	for _, t := range tags {
		for i := 0; i < len(t); i++ {
			if t[i] == ':' {
				out[sanitize(t[:i])] = t[i+1:]
				break
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func collectorKey(name string, tags []string) string {
	return name + "|" + fmt.Sprint(tags)
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, tags ...string) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := collectorKey(name, tags)
	c, ok := b.counters[k]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        sanitize(name),
			ConstLabels: labelsFromTags(tags),
		})
		if err := b.reg.Register(c); err != nil {
			// Duplicate registration can only happen on a key collision;
			// dropping the sample is preferable to panicking mid-run.
			return
		}
		b.counters[k] = c
	}
	c.Add(delta)
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, d time.Duration, tags ...string) {
	if d < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := collectorKey(name, tags)
	h, ok := b.histograms[k]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        sanitize(name) + "_seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labelsFromTags(tags),
		})
		if err := b.reg.Register(h); err != nil {
			return
		}
		b.histograms[k] = h
	}
	h.Observe(d.Seconds())
}

// Flush pushes the whole registry to the Pushgateway.
func (b *Backend) Flush() error {
	return b.pusher.Push()
}

var _ metrics.Backend = (*Backend)(nil)
