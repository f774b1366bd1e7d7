package httpds

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/pgzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Remote streams a VCF from a URL. Compression is detected from the
// payload's leading bytes, not from the URL suffix, so endpoints that
// serve gzip data under a plain name still decode correctly.
type Remote struct {
	URL    string
	Client *Client
}

// Open issues the GET and returns a reader over the decoded body.
// Closing the reader closes the underlying response body.
func (r Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	client := r.Client
	if client == nil {
		client = NewClient(Config{})
	}

	resp, err := client.Get(ctx, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpds: open %s: %w", r.URL, err)
	}

	br := bufio.NewReaderSize(resp.Body, 64*1024)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: peek %s: %w", r.URL, err)
	}

	if !bytes.HasPrefix(head, gzipMagic) {
		return &rc{Reader: br, close: resp.Body.Close}, nil
	}

	gz, err := pgzip.NewReader(br)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: gzip %s: %w", r.URL, err)
	}
	return &rc{Reader: gz, close: func() error {
		cerr := gz.Close()
		if err := resp.Body.Close(); err != nil && cerr == nil {
			cerr = err
		}
		return cerr
	}}, nil
}

type rc struct {
	io.Reader
	close func() error
}

func (r *rc) Close() error { return r.close() }

// DefaultPreambleBytes is how much of a remote VCF a Preamble fetches when
// the caller does not choose a size. Meta lines plus the column header fit
// comfortably for cohort files with thousands of samples.
const DefaultPreambleBytes = 1 << 20

// Preamble fetches only the leading bytes of a remote VCF, using a ranged
// GET capped client-side. Header probing never needs the record body, so a
// multi-gigabyte URL costs one bounded request. The stream is truncated by
// design; a gzip payload cut mid-stream reads cleanly up to the cut.
type Preamble struct {
	URL      string
	Client   *Client
	MaxBytes int // <= 0 means DefaultPreambleBytes
}

// Open fetches the leading bytes and returns a reader over the decoded
// prefix.
func (p Preamble) Open(ctx context.Context) (io.ReadCloser, error) {
	client := p.Client
	if client == nil {
		client = NewClient(Config{})
	}
	n := p.MaxBytes
	if n <= 0 {
		n = DefaultPreambleBytes
	}

	raw, err := client.FetchFirstBytes(ctx, p.URL, n)
	if err != nil {
		return nil, fmt.Errorf("httpds: fetch %s: %w", p.URL, err)
	}
	if !bytes.HasPrefix(raw, gzipMagic) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	gz, err := pgzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("httpds: gzip %s: %w", p.URL, err)
	}
	return &rc{Reader: &truncatedStream{r: gz}, close: gz.Close}, nil
}

// truncatedStream turns the unexpected-EOF of a cut-off gzip payload into a
// plain EOF. A ranged fetch truncates mid-stream on purpose, so the cut is
// end-of-data, not corruption.
type truncatedStream struct{ r io.Reader }

func (t *truncatedStream) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// FetchFirstBytes retrieves up to n bytes from the URL. It sends a Range
// header as an optimization and caps the read client-side in case the
// server ignores it. The returned slice length is <= n.
func (c *Client) FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("httpds: n must be > 0")
	}

	h := make(http.Header)
	h.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))

	resp, err := c.Get(ctx, url, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(&io.LimitedReader{R: resp.Body, N: int64(n)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
