package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bjtill/VCF-Sample-Filter/internal/metrics"
)

func TestNewBackend_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Error("empty gateway URL must fail")
	}
}

func TestNewBackend_DefaultJobName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "http://localhost:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "vcf_filter" {
		t.Errorf("jobName = %q, want vcf_filter", b.jobName)
	}
}

func TestBackend_IgnoresUnknownMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://localhost:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	// Must not panic or register anything.
	b.IncCounter("unrelated_total", 1, nil)
	b.ObserveDuration("unrelated_seconds", 1, nil)
}

func TestBackend_FlushPushesRegisteredMetrics(t *testing.T) {
	t.Parallel()

	var (
		gotMethod string
		gotPath   string
		gotBody   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("cohort_filter", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter("vcf_filter_stage_total", 1, metrics.Labels{
		"stage": "filter", "status": "success",
	})
	b.IncCounter("vcf_filter_records_total", 123, metrics.Labels{
		"kind": "processed",
	})
	b.ObserveDuration("vcf_filter_stage_duration_seconds", 1.5, metrics.Labels{
		"stage": "filter", "status": "success",
	})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if gotMethod != http.MethodPut && gotMethod != http.MethodPost {
		t.Errorf("push method = %q", gotMethod)
	}
	if !strings.Contains(gotPath, "cohort_filter") {
		t.Errorf("push path = %q, want the job name in the grouping key", gotPath)
	}
	for _, want := range []string{
		"vcf_filter_stage_total",
		"vcf_filter_records_total",
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("pushed body is missing %s", want)
		}
	}
}

// Backend must satisfy the metrics interface.
var _ metrics.Backend = (*Backend)(nil)
