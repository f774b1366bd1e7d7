// Package probe inspects the header of a VCF, local or remote, and
// reports its sample columns. It reads only as far as the column header
// line, so probing a multi-gigabyte cohort file costs a few kilobytes.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/bjtill/VCF-Sample-Filter/internal/datasource"
	"github.com/bjtill/VCF-Sample-Filter/internal/filter"
)

// maxHeaderLines caps the scan; a well-formed VCF reaches #CHROM long
// before this.
const maxHeaderLines = 100_000

// Options configures one probe.
type Options struct {
	// Fold adds a folded (lowercase, accent-stripped) form to each sample,
	// useful for spotting list entries that differ only in case or
	// diacritics from the header spelling.
	Fold bool
}

// Result is what the header declares.
type Result struct {
	// FileFormat is the ##fileformat value, empty when absent.
	FileFormat string `json:"fileformat,omitempty"`

	// MetaLines counts ## lines before the column header.
	MetaLines int `json:"meta_lines"`

	// Fixed are the mandatory columns up to and including FORMAT.
	Fixed []string `json:"fixed"`

	// Samples are the column names after FORMAT, in header order.
	Samples []string `json:"samples"`

	// Folded parallels Samples when Options.Fold is set.
	Folded []string `json:"folded,omitempty"`
}

// Probe scans src until the column header line and reports the columns.
// It returns filter.ErrFormat when the stream ends, hits a data line, or
// exceeds the scan cap without a #CHROM line.
func Probe(ctx context.Context, src datasource.Source, opts Options) (Result, error) {
	in, err := src.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer in.Close()

	var res Result
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16<<20)

	for lines := 0; sc.Scan(); lines++ {
		if lines >= maxHeaderLines {
			break
		}
		line := sc.Text()
		switch {
		case filter.IsHeaderLine(line):
			return parseHeader(line, res, opts)
		case strings.HasPrefix(line, "##"):
			res.MetaLines++
			if v, ok := strings.CutPrefix(line, "##fileformat="); ok {
				res.FileFormat = v
			}
		case line == "":
			// tolerate blank lines in the preamble
		default:
			return Result{}, fmt.Errorf("data before column header: %w", filter.ErrFormat)
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, filter.ErrFormat
}

func parseHeader(line string, res Result, opts Options) (Result, error) {
	cols := strings.Split(line, "\t")
	pivot := -1
	for i, c := range cols {
		if c == "FORMAT" {
			pivot = i
			break
		}
	}
	if pivot < 0 {
		return Result{}, filter.ErrFormat
	}
	res.Fixed = cols[:pivot+1]
	res.Samples = cols[pivot+1:]

	if opts.Fold {
		res.Folded = make([]string, len(res.Samples))
		for i, s := range res.Samples {
			res.Folded[i] = FoldName(s)
		}
	}
	return res, nil
}

// FoldName lowercases s and strips diacritics (NFD, remove nonspacing
// marks, NFC). "José" and "jose" fold to the same string.
func FoldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
