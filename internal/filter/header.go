package filter

import (
	"fmt"
	"strings"
)

const (
	// pivotColumn separates the fixed leading VCF columns from the
	// per-sample genotype columns that follow it.
	pivotColumn = "FORMAT"

	// fixedFields is the width of the fixed prefix emitted for every data
	// record (CHROM through FORMAT in a well-formed VCF).
	fixedFields = 9

	// missingField is emitted when a projected position lies beyond a
	// record's actual width.
	missingField = "."

	headerPrefix = "#CHROM"
)

// IsHeaderLine reports whether line is the column header row.
func IsHeaderLine(line string) bool {
	return strings.HasPrefix(line, headerPrefix)
}

// IsMetaLine reports whether line is a meta/comment row (or blank), which
// passes through the filter unchanged.
func IsMetaLine(line string) bool {
	return line == "" || line[0] == '#'
}

// Projection is the immutable result of resolving the header against a
// sample set. It is built once before any worker starts and shared read-only
// for the lifetime of the run.
type Projection struct {
	// Header is the rewritten header line: the fixed prefix plus the
	// retained sample names, in original header order.
	Header string

	// Indices holds the 0-based tab-split positions of the retained sample
	// columns, in original header order.
	Indices []int

	// TotalSamples is the number of sample columns the header declared,
	// matched or not. Used for diagnostics only.
	TotalSamples int
}

// ResolveHeader splits the header row on tabs, locates the first FORMAT
// field (the pivot), and selects every later field whose name is in samples.
// Fields at or before the pivot are always retained and form the fixed
// prefix of the rewritten header.
//
// A missing pivot yields an error wrapping ErrFormat; zero matched samples
// yields one wrapping ErrNoMatch.
func ResolveHeader(line string, samples SampleSet) (*Projection, error) {
	fields := strings.Split(line, "\t")

	pivot := -1
	for i, f := range fields {
		if f == pivotColumn {
			pivot = i
			break
		}
	}
	if pivot < 0 {
		return nil, fmt.Errorf("%w: header has %d fields", ErrFormat, len(fields))
	}

	out := make([]string, 0, pivot+1+len(samples))
	out = append(out, fields[:pivot+1]...)

	indices := make([]int, 0, len(samples))
	for i := pivot + 1; i < len(fields); i++ {
		if samples.Contains(fields[i]) {
			indices = append(indices, i)
			out = append(out, fields[i])
		}
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: %d requested, %d in header",
			ErrNoMatch, len(samples), len(fields)-pivot-1)
	}

	return &Projection{
		Header:       strings.Join(out, "\t"),
		Indices:      indices,
		TotalSamples: len(fields) - pivot - 1,
	}, nil
}
