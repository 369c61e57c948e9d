// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers observations in memory, submits them on a ticker
// (default once per minute) and one final time on Close. Short-lived loads
// get a single tail submission; long loads get an actual time series.
//
// Concurrency model:
//   - pipeline goroutines call IncCounter/ObserveDuration at any time
//   - Flush snapshots and resets buffers under a mutex, then submits
//     out-of-lock
//   - Close stops the flush loop and flushes once more
package datadog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"musicetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "etl".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests use
	// them to avoid real network submission and nondeterministic tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics. The SDK
// exposes a concrete *datadogV2.MetricsApi; depending on this interface keeps
// the backend testable with a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[string]float64   // series key -> accumulated delta
	samples  map[string][]float64 // series key -> duration samples (seconds)
}

// NewBackend constructs a Datadog backend using the official client. The API
// key is read from the environment by the SDK's default context (DD_API_KEY).
// Network errors surface from Flush, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "etl"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := append([]string{"job:" + job}, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[string]float64),
		samples:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush. Call
// once at process shutdown.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// seriesKey folds name and sorted tags into one buffer key, "name|t1,t2".
func seriesKey(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return name + "|" + strings.Join(sorted, ",")
}

func splitSeriesKey(key string) (name string, tags []string) {
	name, rest, found := strings.Cut(key, "|")
	if !found || rest == "" {
		return name, nil
	}
	return name, strings.Split(rest, ",")
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, tags ...string) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	b.counters[seriesKey(name, tags)] += delta
	b.mu.Unlock()
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, d time.Duration, tags ...string) {
	if d < 0 {
		return
	}
	k := seriesKey(name, tags)
	b.mu.Lock()
	b.samples[k] = append(b.samples[k], d.Seconds())
	b.mu.Unlock()
}

type snapshot struct {
	counters map[string]float64
	samples  map[string][]float64
}

// Flush snapshots and resets the buffers, then submits everything captured
// since the previous flush. An empty snapshot submits nothing.
func (b *Backend) Flush() error {
	b.mu.Lock()
	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[string]float64)
	b.samples = make(map[string][]float64)
	b.mu.Unlock()

	series := b.buildSeries(s, b.now().Unix())
	if len(series) == 0 {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: series}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries renders a snapshot as Datadog series. Counters become count
// points; duration samples are summarized as avg and max gauges (the v2
// intake has no client-side histogram).
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+2*len(s.samples))

	point := func(v float64) []datadogV2.MetricPoint {
		return []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(v)},
		}
	}

	keys := make([]string, 0, len(s.counters))
	for k := range s.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, tags := splitSeriesKey(k)
		series = append(series, datadogV2.MetricSeries{
			Metric: name,
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: point(s.counters[k]),
			Tags:   append(append([]string(nil), b.baseTags...), tags...),
		})
	}

	keys = keys[:0]
	for k := range s.samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := s.samples[k]
		if len(vals) == 0 {
			continue
		}
		var sum, max float64
		for _, v := range vals {
			sum += v
			if v > max {
				max = v
			}
		}
		name, tags := splitSeriesKey(k)
		allTags := append(append([]string(nil), b.baseTags...), tags...)
		series = append(series,
			datadogV2.MetricSeries{
				Metric: name + ".avg",
				Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
				Points: point(sum / float64(len(vals))),
				Tags:   allTags,
			},
			datadogV2.MetricSeries{
				Metric: name + ".max",
				Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
				Points: point(max),
				Tags:   allTags,
			},
		)
	}

	return series
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV splits a comma-separated tag list from the environment
// (e.g. "env:prod,team:data") into a tag slice, dropping empty entries.
func ParseTagsCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
