// Package filter implements the VCF column-selection core: the target sample
// set, header resolution into a column projection, and the per-record
// projector applied by pipeline workers.
//
// Matching is exact: names are compared byte-for-byte after trimming edge
// whitespace from the sample list, with no case folding. Everything in this
// package is immutable after construction and safe for concurrent reads.
package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// SampleSet is the set of sample names whose columns are retained.
type SampleSet map[string]struct{}

// Contains reports whether name is a requested sample.
func (s SampleSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// LoadSamples reads one sample name per line from r, trimming edge
// whitespace and skipping empty lines. It returns an error wrapping
// ErrConfig when the source yields zero usable names or cannot be read.
func LoadSamples(r io.Reader) (SampleSet, error) {
	set := SampleSet{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read sample list: %w", ErrConfig, err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no sample names found", ErrConfig)
	}
	return set, nil
}

// LoadSamplesFile loads a sample set from a local file.
func LoadSamplesFile(path string) (SampleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConfig, path, err)
	}
	defer f.Close()

	set, err := LoadSamples(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}
