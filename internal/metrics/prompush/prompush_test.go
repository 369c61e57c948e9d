package prompush

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"etl.files_processed", "etl_files_processed"},
		{"etl.file-duration", "etl_file_duration"},
		{"already_fine:total", "already_fine:total"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLabelsFromTags(t *testing.T) {
	t.Parallel()

	got := labelsFromTags([]string{"table:songs", "no-colon", "env:prod"})
	want := map[string]string{"table": "songs", "env": "prod"}
	if !reflect.DeepEqual(map[string]string(got), want) {
		t.Fatalf("labelsFromTags = %v, want %v", got, want)
	}
	if labelsFromTags(nil) != nil {
		t.Fatal("nil tags must yield nil labels")
	}
}

func findMetric(t *testing.T, b *Backend, name string) *dto.MetricFamily {
	t.Helper()
	fams, err := b.reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fams {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestBackend_CountersAndHistograms(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("etl", "http://localhost:9091")
	if err != nil {
		t.Fatalf("NewBackend() err = %v", err)
	}

	b.IncCounter("etl.rows_written", 3, "table:songs")
	b.IncCounter("etl.rows_written", 2, "table:songs")
	b.IncCounter("etl.rows_written", -1, "table:songs") // ignored
	b.ObserveDuration("etl.file_duration", 500*time.Millisecond)
	b.ObserveDuration("etl.file_duration", -time.Second) // ignored

	c := findMetric(t, b, "etl_rows_written")
	if c == nil {
		t.Fatal("counter not registered")
	}
	if got := c.Metric[0].GetCounter().GetValue(); got != 5 {
		t.Errorf("counter value = %v, want 5", got)
	}

	h := findMetric(t, b, "etl_file_duration_seconds")
	if h == nil {
		t.Fatal("histogram not registered")
	}
	if got := h.Metric[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("histogram samples = %d, want 1", got)
	}
	if got := h.Metric[0].GetHistogram().GetSampleSum(); got != 0.5 {
		t.Errorf("histogram sum = %v, want 0.5", got)
	}
}

func TestBackend_FlushPushes(t *testing.T) {
	t.Parallel()

	var pushed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("etl", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter("etl.files_processed", 1)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err = %v", err)
	}
	if !pushed {
		t.Fatal("Flush() did not hit the Pushgateway endpoint")
	}
}

func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("", "http://localhost:9091"); err == nil {
		t.Error("empty job must fail")
	}
	if _, err := NewBackend("etl", ""); err == nil {
		t.Error("empty URL must fail")
	}
}
