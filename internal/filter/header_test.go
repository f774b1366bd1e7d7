package filter

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// vcfHeader builds a #CHROM header with the standard 9 fixed columns plus
// the given sample names.
func vcfHeader(samples ...string) string {
	fixed := []string{
		"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT",
	}
	return strings.Join(append(fixed, samples...), "\t")
}

func asSet(names ...string) SampleSet {
	s := SampleSet{}
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func TestResolveHeader_SelectsInHeaderOrder(t *testing.T) {
	t.Parallel()

	// Target-set order must not matter: selection mirrors the header.
	p, err := ResolveHeader(vcfHeader("A", "B", "C", "D"), asSet("D", "B"))
	if err != nil {
		t.Fatalf("ResolveHeader: %v", err)
	}

	if want := []int{10, 12}; !reflect.DeepEqual(p.Indices, want) {
		t.Errorf("Indices = %v, want %v", p.Indices, want)
	}
	if want := vcfHeader("B", "D"); p.Header != want {
		t.Errorf("Header = %q, want %q", p.Header, want)
	}
	if p.TotalSamples != 4 {
		t.Errorf("TotalSamples = %d, want 4", p.TotalSamples)
	}
}

func TestResolveHeader_FieldCount(t *testing.T) {
	t.Parallel()

	p, err := ResolveHeader(vcfHeader("A", "B", "C"), asSet("A", "C"))
	if err != nil {
		t.Fatalf("ResolveHeader: %v", err)
	}
	got := len(strings.Split(p.Header, "\t"))
	if want := fixedFields + len(p.Indices); got != want {
		t.Errorf("rewritten header has %d fields, want %d", got, want)
	}
}

func TestResolveHeader_PivotMissing(t *testing.T) {
	t.Parallel()

	_, err := ResolveHeader("#CHROM\tPOS\tID\tREF\tALT", asSet("A"))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

func TestResolveHeader_NoMatch(t *testing.T) {
	t.Parallel()

	_, err := ResolveHeader(vcfHeader("A", "B"), asSet("Z"))
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("error = %v, want ErrNoMatch", err)
	}
}

func TestResolveHeader_FirstPivotWins(t *testing.T) {
	t.Parallel()

	// A sample confusingly named FORMAT after the real pivot must be
	// treated as an ordinary sample column, not a second pivot.
	line := vcfHeader("FORMAT", "B")
	p, err := ResolveHeader(line, asSet("FORMAT", "B"))
	if err != nil {
		t.Fatalf("ResolveHeader: %v", err)
	}
	if want := []int{9, 10}; !reflect.DeepEqual(p.Indices, want) {
		t.Errorf("Indices = %v, want %v", p.Indices, want)
	}
}

func TestIsHeaderLine(t *testing.T) {
	t.Parallel()

	if !IsHeaderLine(vcfHeader("A")) {
		t.Error("column header not recognized")
	}
	if IsHeaderLine("##fileformat=VCFv4.2") {
		t.Error("meta line misidentified as column header")
	}
	if IsHeaderLine("1\t100\trs1") {
		t.Error("data line misidentified as column header")
	}
}

func TestIsMetaLine(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"##source=test", "#anything", ""} {
		if !IsMetaLine(line) {
			t.Errorf("IsMetaLine(%q) = false, want true", line)
		}
	}
	if IsMetaLine("1\t100") {
		t.Error("data line misidentified as meta")
	}
}
