package datadog

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return datadogV2.IntakePayloadAccepted{}, nil, f.err
	}
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) all() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.payloads...)
}

// newTestBackend wires a backend to a fake submitter with a ticker that never
// fires, so only explicit Flush/Close submit.
func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName: "testjob",
		Tags:    []string{"env:test"},
		now:     func() time.Time { return time.Unix(1700000000, 0) },
		newTicker: func(time.Duration) *time.Ticker {
			return time.NewTicker(24 * time.Hour)
		},
		submitter: sub,
	})
	if err != nil {
		t.Fatalf("NewBackend() err = %v", err)
	}
	return b
}

func findSeries(payloads []datadogV2.MetricPayload, metric string) *datadogV2.MetricSeries {
	for _, p := range payloads {
		for i := range p.Series {
			if p.Series[i].Metric == metric {
				return &p.Series[i]
			}
		}
	}
	return nil
}

func TestBackend_CountersAccumulateAndSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("etl.files_processed", 1)
	b.IncCounter("etl.files_processed", 1)
	b.IncCounter("etl.rows_written", 4, "table:songs")

	if err := b.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}

	files := findSeries(sub.all(), "etl.files_processed")
	if files == nil {
		t.Fatal("etl.files_processed not submitted")
	}
	if got := *files.Points[0].Value; got != 2 {
		t.Errorf("files_processed value = %v, want 2", got)
	}
	if got := *files.Type; got != datadogV2.METRICINTAKETYPE_COUNT {
		t.Errorf("type = %v, want count", got)
	}
	if ts := *files.Points[0].Timestamp; ts != 1700000000 {
		t.Errorf("timestamp = %d, want 1700000000", ts)
	}

	rows := findSeries(sub.all(), "etl.rows_written")
	if rows == nil {
		t.Fatal("etl.rows_written not submitted")
	}
	want := []string{"job:testjob", "env:test", "table:songs"}
	if !reflect.DeepEqual(rows.Tags, want) {
		t.Errorf("tags = %v, want %v", rows.Tags, want)
	}
}

func TestBackend_DurationsBecomeAvgAndMaxGauges(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.ObserveDuration("etl.file_duration", 100*time.Millisecond)
	b.ObserveDuration("etl.file_duration", 300*time.Millisecond)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	avg := findSeries(sub.all(), "etl.file_duration.avg")
	max := findSeries(sub.all(), "etl.file_duration.max")
	if avg == nil || max == nil {
		t.Fatalf("avg/max gauges missing from %+v", sub.all())
	}
	if got := *avg.Points[0].Value; got != 0.2 {
		t.Errorf("avg = %v, want 0.2", got)
	}
	if got := *max.Points[0].Value; got != 0.3 {
		t.Errorf("max = %v, want 0.3", got)
	}
	if got := *avg.Type; got != datadogV2.METRICINTAKETYPE_GAUGE {
		t.Errorf("type = %v, want gauge", got)
	}
}

func TestBackend_FlushResetsBuffers(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("etl.files_processed", 1)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	// Nothing new since the flush, so Close must not resubmit.
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	if got := len(sub.all()); got != 1 {
		t.Fatalf("payloads = %d, want 1", got)
	}
}

func TestBackend_IgnoresNonPositiveAndNegative(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("etl.files_processed", 0)
	b.IncCounter("etl.files_processed", -3)
	b.ObserveDuration("etl.file_duration", -time.Second)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if got := len(sub.all()); got != 0 {
		t.Fatalf("payloads = %d, want 0", got)
	}
}

func TestSeriesKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags []string
		want string
	}{
		{"m", nil, "m"},
		{"m", []string{"b:2", "a:1"}, "m|a:1,b:2"},
		{"m", []string{"table:songs"}, "m|table:songs"},
	}
	for _, tt := range tests {
		if got := seriesKey(tt.name, tt.tags); got != tt.want {
			t.Errorf("seriesKey(%q, %v) = %q, want %q", tt.name, tt.tags, got, tt.want)
		}
		name, tags := splitSeriesKey(tt.want)
		if name != tt.name {
			t.Errorf("splitSeriesKey(%q) name = %q", tt.want, name)
		}
		if len(tt.tags) > 0 && len(tags) != len(tt.tags) {
			t.Errorf("splitSeriesKey(%q) tags = %v", tt.want, tags)
		}
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"env:prod", []string{"env:prod"}},
		{"env:prod, team:data ,", []string{"env:prod", "team:data"}},
	}
	for _, tt := range tests {
		got := ParseTagsCSV(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTagsCSV(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
