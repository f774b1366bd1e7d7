package filter

import "errors"

// Sentinel errors for the fatal failure classes of a filtering run. They are
// wrapped with stage context at the point of failure; callers classify with
// errors.Is.
var (
	// ErrConfig reports an unusable sample list: the source could not be
	// read, or it contained no usable names.
	ErrConfig = errors.New("sample list unusable")

	// ErrFormat reports a header without the FORMAT pivot column.
	ErrFormat = errors.New("FORMAT column not found in header")

	// ErrNoMatch reports that none of the requested sample names appear in
	// the header.
	ErrNoMatch = errors.New("no matching samples found in header")
)
