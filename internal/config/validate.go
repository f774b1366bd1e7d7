// This file adds a lightweight linter for Run values. It performs static
// checks over a decoded Run and returns a list of issues (errors and
// warnings) that callers surface in the CLI or tests.
package config

import (
	"runtime"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates an issue worth surfacing that does not by
	// itself block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Run.
//
// Path is a dotted path into the config (e.g. "runtime.workers").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where convenient.
func (i Issue) Error() string {
	return string(i.Severity) + " at " + i.Path + ": " + i.Message
}

// Validate performs static validation of a Run. It does not touch the
// filesystem; existence checks happen when the run opens its files. Callers
// decide whether warnings are fatal.
func Validate(r Run) []Issue {
	var issues []Issue

	req := func(path, val, msg string) {
		if strings.TrimSpace(val) == "" {
			issues = append(issues, Issue{SeverityError, path, msg})
		}
	}
	req("input", r.Input, "input VCF path is required")
	req("output", r.Output, "output path is required")
	req("samples", r.Samples, "sample list path is required")

	if r.Input != "" && r.Input == r.Output {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output",
			Message:  "output must not be the same path as input",
		})
	}

	if r.Runtime.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must be a positive integer (or 0 for the default)",
		})
	} else if max := 8 * runtime.NumCPU(); r.Runtime.Workers > max {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.workers",
			Message:  "workers far exceeds available CPUs; throughput is unlikely to improve",
		})
	}

	if r.Runtime.QueueCapacity < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.queue_capacity",
			Message:  "queue_capacity must be a positive integer (or 0 for the default)",
		})
	}

	if r.Compress && !strings.HasSuffix(r.Output, ".gz") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output",
			Message:  "compressed output without a .gz suffix confuses downstream tools",
		})
	}

	return issues
}

// HasError reports whether any issue carries error severity.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
