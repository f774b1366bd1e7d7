package filter

import "strings"

// Project rewrites one data record to the fixed prefix plus the projected
// sample columns. It is pure and safe to call concurrently from any number
// of workers.
//
// Records with fewer than the fixed-prefix width of tab-separated fields are
// returned verbatim; this is the degraded-input policy, not a failure. A
// projected position past the record's width emits the "." placeholder,
// meaning no data was recorded for that column in this row.
func (p *Projection) Project(line string) string {
	fields := strings.Split(line, "\t")
	if len(fields) < fixedFields {
		return line
	}

	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < fixedFields; i++ {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(fields[i])
	}
	for _, ix := range p.Indices {
		b.WriteByte('\t')
		if ix < len(fields) {
			b.WriteString(fields[ix])
		} else {
			b.WriteString(missingField)
		}
	}
	return b.String()
}

// Degraded reports whether line has fewer than the fixed-prefix width of
// tab-separated fields, meaning Project would return it verbatim.
func Degraded(line string) bool {
	return strings.Count(line, "\t") < fixedFields-1
}
