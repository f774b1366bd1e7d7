// Package datasource defines the byte-stream collaborators the filter core
// reads from and writes to. Codec concerns (gzip) live in the
// implementations; the pipeline only ever sees plain readers and writers.
package datasource

import (
	"context"
	"io"
)

// Source produces the input byte stream, already decompressed when the
// underlying resource is compressed.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sink produces the output byte stream, compressing transparently when the
// implementation is configured to.
type Sink interface {
	Create(ctx context.Context) (io.WriteCloser, error)
}
