// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from filtering runs.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and
//     duration observations.
//   - The global backend defaults to a no-op implementation, so metrics are
//     always safe to call even when nothing is configured.
//   - Concrete metric systems live in subpackages (see prompush); the rest
//     of the codebase depends only on this interface.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style value.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)      {}
func (nopBackend) ObserveDuration(string, float64, Labels) {}
func (nopBackend) Flush() error                            { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one pipeline stage or whole run: latency plus a
// success/failure counter.
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}
	backend.IncCounter("vcf_filter_stage_total", 1, lbls)
	backend.ObserveDuration("vcf_filter_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRecords increments a record-level counter for the given job and
// kind. Typical kinds mirror the run summary fields:
//
//   - "processed"
//   - "projected"
//   - "passed_through"
//   - "written"
func RecordRecords(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("vcf_filter_records_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}
