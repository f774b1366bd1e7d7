package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bjtill/VCF-Sample-Filter/internal/filter"
	"github.com/bjtill/VCF-Sample-Filter/internal/queue"
)

const testHeader = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT"

func samples(names ...string) filter.SampleSet {
	s := filter.SampleSet{}
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// buildVCF produces a small VCF with the given sample columns and n data
// records with deterministic genotype values.
func buildVCF(n int, sampleNames ...string) string {
	var b strings.Builder
	b.WriteString("##fileformat=VCFv4.2\n")
	b.WriteString("##source=pipelinetest\n")
	b.WriteString(testHeader)
	for _, s := range sampleNames {
		b.WriteString("\t")
		b.WriteString(s)
	}
	b.WriteString("\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "1\t%d\trs%d\tA\tG\t50\tPASS\tDP=10\tGT", 100+i, i)
		for j := range sampleNames {
			fmt.Fprintf(&b, "\t%d/%d", i%2, j%2)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func runFilter(t *testing.T, input string, set filter.SampleSet, workers int) (string, Result, error) {
	t.Helper()
	var out bytes.Buffer
	res, err := Run(context.Background(), Options{
		Input:   strings.NewReader(input),
		Output:  &out,
		Samples: set,
		Workers: workers,
	})
	return out.String(), res, err
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"##fileformat=VCFv4.2",
		testHeader + "\tA\tB\tC",
		"1\t100\trs1\tA\tG\t50\tPASS\tDP=10\tGT\t0/0\t0/1\t1/1",
	}, "\n") + "\n"

	out, res, err := runFilter(t, input, samples("B"), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := strings.Join([]string{
		"##fileformat=VCFv4.2",
		testHeader + "\tB",
		"1\t100\trs1\tA\tG\t50\tPASS\tDP=10\tGT\t0/1",
	}, "\n") + "\n"
	if out != want {
		t.Errorf("output:\n%q\nwant:\n%q", out, want)
	}

	if res.MatchedSamples != 1 || res.TotalSamples != 3 {
		t.Errorf("matched/total = %d/%d, want 1/3", res.MatchedSamples, res.TotalSamples)
	}
	if res.LinesProcessed != 1 || res.Projected != 1 {
		t.Errorf("processed=%d projected=%d, want 1/1", res.LinesProcessed, res.Projected)
	}
	if res.LinesWritten != 3 {
		t.Errorf("written=%d, want 3", res.LinesWritten)
	}
}

func TestRun_OutputOrderIndependentOfWorkerCount(t *testing.T) {
	t.Parallel()

	input := buildVCF(5000, "S1", "S2", "S3", "S4")
	set := samples("S2", "S4")

	base, _, err := runFilter(t, input, set, 1)
	if err != nil {
		t.Fatalf("Run(workers=1): %v", err)
	}

	for _, workers := range []int{2, 4, 8} {
		got, _, err := runFilter(t, input, set, workers)
		if err != nil {
			t.Fatalf("Run(workers=%d): %v", workers, err)
		}
		if got != base {
			t.Fatalf("workers=%d output differs from workers=1 output", workers)
		}
	}
}

func TestRun_SmallQueueStillOrdered(t *testing.T) {
	t.Parallel()

	input := buildVCF(500, "S1", "S2")
	var out bytes.Buffer
	_, err := Run(context.Background(), Options{
		Input:         strings.NewReader(input),
		Output:        &out,
		Samples:       samples("S1"),
		Workers:       4,
		QueueCapacity: 2, // force constant backpressure
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	base, _, err := runFilter(t, input, samples("S1"), 1)
	if err != nil {
		t.Fatalf("Run(workers=1): %v", err)
	}
	if out.String() != base {
		t.Error("tiny queue capacity changed output ordering")
	}
}

func TestRun_CommentAndDegradedPassThrough(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		testHeader + "\tA\tB",
		"1\t100\trs1\tA\tG\t50\tPASS\tDP=10\tGT\t0/0\t0/1",
		"#midstream comment",
		"short\tline", // degraded: fewer than 9 fields
		"1\t101\trs2\tA\tG\t50\tPASS\tDP=10\tGT\t1/1\t0/0",
	}, "\n") + "\n"

	out, res, err := runFilter(t, input, samples("B"), 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d output lines, want 5", len(lines))
	}
	if lines[2] != "#midstream comment" {
		t.Errorf("comment line = %q, want verbatim pass-through in position", lines[2])
	}
	if lines[3] != "short\tline" {
		t.Errorf("degraded line = %q, want verbatim pass-through", lines[3])
	}
	if res.PassedThrough != 2 {
		t.Errorf("PassedThrough = %d, want 2", res.PassedThrough)
	}
	if res.Projected != 2 {
		t.Errorf("Projected = %d, want 2", res.Projected)
	}
}

func TestRun_BoundaryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		samples filter.SampleSet
		want    error
	}{
		{
			name:    "empty sample set",
			input:   buildVCF(1, "A"),
			samples: filter.SampleSet{},
			want:    filter.ErrConfig,
		},
		{
			name:    "no column header",
			input:   "##fileformat=VCFv4.2\n",
			samples: samples("A"),
			want:    filter.ErrFormat,
		},
		{
			name:    "pivot missing",
			input:   "#CHROM\tPOS\tID\n",
			samples: samples("A"),
			want:    filter.ErrFormat,
		},
		{
			name:    "no requested samples in header",
			input:   buildVCF(1, "A", "B"),
			samples: samples("Z"),
			want:    filter.ErrNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Run(context.Background(), Options{
				Input:   strings.NewReader(tt.input),
				Output:  &out,
				Samples: tt.samples,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

// failAfterWriter fails every write after the first n bytes.
type failAfterWriter struct {
	n       int
	written int
}

func (w *failAfterWriter) Write(p []byte) (int, error) {
	if w.written >= w.n {
		return 0, errors.New("disk full")
	}
	w.written += len(p)
	return len(p), nil
}

func TestRun_WriterFailureDrainsAndSurfaces(t *testing.T) {
	t.Parallel()

	// Enough records that upstream stages would deadlock if the writer
	// stopped draining after the failure.
	input := buildVCF(20_000, "S1", "S2")

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Run(context.Background(), Options{
			Input:         strings.NewReader(input),
			Output:        &failAfterWriter{n: 1}, // fail almost immediately
			Samples:       samples("S1"),
			Workers:       4,
			QueueCapacity: 16,
		})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run hung after writer failure")
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v, want the writer failure", err)
	}
}

// failAfterReader yields its payload and then an I/O error instead of EOF.
type failAfterReader struct {
	r    *strings.Reader
	errd bool
}

func (r *failAfterReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == nil {
		return n, nil
	}
	if !r.errd {
		r.errd = true
		return n, errors.New("device error")
	}
	return n, err
}

func TestRun_ReaderFailureDrainsAndSurfaces(t *testing.T) {
	t.Parallel()

	input := buildVCF(1000, "S1")
	var out bytes.Buffer

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Run(context.Background(), Options{
			Input:   &failAfterReader{r: strings.NewReader(input)},
			Output:  &out,
			Samples: samples("S1"),
			Workers: 2,
		})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run hung after reader failure")
	}
	if err == nil || !strings.Contains(err.Error(), "device error") {
		t.Errorf("error = %v, want the reader failure", err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	set := samples("S1", "S3")
	once, _, err := runFilter(t, buildVCF(200, "S1", "S2", "S3"), set, 2)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	twice, _, err := runFilter(t, once, set, 2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if twice != once {
		t.Error("refiltering an already-filtered output was not a no-op")
	}
}

func TestWriter_ReorderBufferBounded(t *testing.T) {
	t.Parallel()

	const capacity = 4
	ctx := context.Background()

	qB := queue.New[record](capacity)
	tokens := make(chan struct{}, capacity)

	var stats counters
	var fail firstErr
	var out bytes.Buffer
	writeLine := func(s string) error {
		out.WriteString(s)
		out.WriteByte('\n')
		stats.written.Add(1)
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runWriter(ctx, qB, writeLine, nil, &stats, &fail, tokens)
	}()

	// Tokens are taken in read order, but record 0 sits with a slow worker
	// while its successors reach the writer first.
	tokens <- struct{}{}

	const total = 200
	var delivered atomic.Int64
	prodDone := make(chan struct{})
	go func() {
		defer close(prodDone)
		for seq := 1; seq < total; seq++ {
			tokens <- struct{}{}
			if err := qB.Push(ctx, record{seq: uint64(seq), text: fmt.Sprintf("line %d", seq)}); err != nil {
				return
			}
			delivered.Add(1)
		}
	}()

	// With the gap unfilled, admission must stall at the capacity, not
	// absorb the whole stream into the reorder buffer.
	time.Sleep(200 * time.Millisecond)
	if n := delivered.Load(); n >= capacity {
		t.Fatalf("writer absorbed %d early records while waiting for the gap; capacity is %d", n, capacity)
	}

	// Record 0 arrives; everything flushes in order and the stalled
	// producer finishes.
	if err := qB.Push(ctx, record{seq: 0, text: "line 0"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	select {
	case <-prodDone:
	case <-time.After(10 * time.Second):
		t.Fatal("producer still blocked after the gap was filled")
	}
	qB.Close()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("writer did not finish")
	}

	var want strings.Builder
	for i := 0; i < total; i++ {
		fmt.Fprintf(&want, "line %d\n", i)
	}
	if out.String() != want.String() {
		t.Error("records were not emitted in sequence order")
	}
}

func TestRun_ProgressCountsStreamedRecordsOnly(t *testing.T) {
	t.Parallel()

	var calls []int64
	progress := func(n int64) { calls = append(calls, n) }

	// 9998 data records behind 3 header lines: the written total crosses
	// 10,000 but the streamed-record count does not, so no callback fires.
	var out bytes.Buffer
	_, err := Run(context.Background(), Options{
		Input:    strings.NewReader(buildVCF(9998, "S1")),
		Output:   &out,
		Samples:  samples("S1"),
		Workers:  2,
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("progress fired at %v for 9998 records, want no callbacks", calls)
	}

	out.Reset()
	_, err = Run(context.Background(), Options{
		Input:    strings.NewReader(buildVCF(20_000, "S1")),
		Output:   &out,
		Samples:  samples("S1"),
		Workers:  2,
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 2 || calls[0] != 10_000 || calls[1] != 20_000 {
		t.Errorf("progress calls = %v, want [10000 20000]", calls)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before we start; the run must still terminate cleanly

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Run(ctx, Options{
			Input:   strings.NewReader(buildVCF(10_000, "S1")),
			Output:  &out,
			Samples: samples("S1"),
			Workers: 4,
		})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not terminate under a canceled context")
	}
}
