// Package pipeline runs the concurrent streaming filter: one reader, a pool
// of projection workers, and one writer, connected by two bounded queues.
//
// Concurrency model:
//
//	Reader (line scan, sequence tagging)
//	     → Queue A (raw records)
//	     → N workers (header pass-through / record projection)
//	     → Queue B (projected records)
//	     → Writer (sequence-ordered emit)
//
// Back-pressure comes solely from the queues: a slow writer stalls workers,
// stalled workers stall the reader, so peak memory stays around O(capacity)
// records per queue regardless of input size. Workers may finish records out
// of arrival order; the writer restores input order with a reorder buffer
// keyed by sequence number, so output is byte-identical for any worker count.
// A token per in-flight record, taken by the reader and returned by the
// writer, keeps the reorder buffer bounded by the queue capacity too.
//
// Failure semantics are drain-and-abort: a reader error closes Queue A early
// so workers exit instead of hanging; a writer error stops emission but the
// writer keeps draining Queue B so producers never block. The first recorded
// error surfaces after all goroutines join.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bjtill/VCF-Sample-Filter/internal/filter"
	"github.com/bjtill/VCF-Sample-Filter/internal/queue"
)

const (
	// DefaultWorkers is the worker-pool size when the caller does not set one.
	DefaultWorkers = 1

	// progressEvery is how many streamed records separate progress callbacks.
	progressEvery = 10_000

	// scanBufSize is the initial line-scan buffer; maxLineSize caps a single
	// record. Cohort VCFs carry one genotype column per sample, so lines can
	// run to many megabytes.
	scanBufSize = 256 << 10
	maxLineSize = 64 << 20
)

// Options configures one filtering run. Input, Output, and Samples are
// required; everything else has defaults.
type Options struct {
	Input   io.Reader
	Output  io.Writer
	Samples filter.SampleSet

	// Workers is the projection pool size. Values < 1 mean DefaultWorkers.
	Workers int

	// QueueCapacity bounds each inter-stage queue (and thereby the writer's
	// reorder buffer). Values < 1 mean queue.DefaultCapacity.
	QueueCapacity int

	// Progress, when non-nil, is called from the writer every progressEvery
	// records that pass through the worker stage, with that running count.
	// The header and the meta lines ahead of it do not advance the cadence.
	Progress func(processed int64)
}

// Result summarizes a completed run.
type Result struct {
	// LinesProcessed counts records that passed through the worker pool
	// (data records plus post-header comment records; the header itself and
	// any meta lines before it are excluded).
	LinesProcessed int64

	// LinesWritten counts records emitted to the output, header included.
	LinesWritten int64

	// Projected and PassedThrough split LinesProcessed into rewritten data
	// records and verbatim comment/degraded records.
	Projected     int64
	PassedThrough int64

	// MatchedSamples and TotalSamples describe the header resolution.
	MatchedSamples int
	TotalSamples   int
}

// record is one line in flight, tagged with its read-order sequence number.
// It is created by the reader and never mutated; ownership moves with it
// through the queues.
type record struct {
	seq  uint64
	text string
}

// counters holds the cross-goroutine statistics for one run. All fields are
// atomics; the coordinator reads them only after join.
type counters struct {
	processed     atomic.Int64
	written       atomic.Int64
	projected     atomic.Int64
	passedThrough atomic.Int64
}

// firstErr records the first failure of a run. Later failures are dropped:
// one run reports one terminal error.
type firstErr struct {
	mu  sync.Mutex
	err error
}

func (f *firstErr) record(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *firstErr) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Run executes one filtering run and blocks until every stage has finished.
//
// The header is resolved synchronously before any worker starts: meta lines
// ahead of the column header pass straight through in file order, then the
// rewritten header is written, then streaming begins. Sample-set and
// projection values are immutable from that point on and shared read-only.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Input == nil || opts.Output == nil {
		return Result{}, fmt.Errorf("pipeline: input and output are required")
	}
	if len(opts.Samples) == 0 {
		return Result{}, fmt.Errorf("%w: empty sample set", filter.ErrConfig)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	sc := bufio.NewScanner(opts.Input)
	sc.Buffer(make([]byte, scanBufSize), maxLineSize)
	out := bufio.NewWriterSize(opts.Output, scanBufSize)

	var stats counters
	var fail firstErr

	writeLine := func(text string) error {
		if _, err := out.WriteString(text); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
		stats.written.Add(1)
		return nil
	}

	// HeaderWait: scan up to the column header, passing meta lines through.
	proj, err := resolveFromStream(sc, opts.Samples, writeLine)
	if err != nil {
		// Nothing concurrent has started; the resolution error is the one
		// reported, the flush is best-effort.
		_ = out.Flush()
		return Result{}, err
	}
	if err := writeLine(proj.Header); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	capacity := opts.QueueCapacity
	if capacity < 1 {
		capacity = queue.DefaultCapacity
	}

	// Streaming: reader → qA → workers → qB → writer. tokens caps the
	// records in flight across all stages, reorder buffer included: the
	// reader takes one per line, the writer returns it on emit. Without it
	// a single slow projection would let the writer park an unbounded run
	// of early records while the reader races ahead.
	qA := queue.New[record](capacity)
	qB := queue.New[record](capacity)
	tokens := make(chan struct{}, capacity)
	qB.AddProducers(workers)

	var wgWorkers, wgWriter sync.WaitGroup

	wgWorkers.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wgWorkers.Done()
			defer qB.ProducerDone()
			runWorker(ctx, proj, qA, qB, &stats)
		}()
	}

	wgWriter.Add(1)
	go func() {
		defer wgWriter.Done()
		runWriter(ctx, qB, writeLine, opts.Progress, &stats, &fail, tokens)
	}()

	// Reader runs on the calling goroutine: it owns the scanner and is the
	// only producer for Queue A.
	var seq uint64
readLoop:
	for sc.Scan() {
		select {
		case tokens <- struct{}{}:
		case <-ctx.Done():
			fail.record(ctx.Err())
			break readLoop
		}
		if err := qA.Push(ctx, record{seq: seq, text: sc.Text()}); err != nil {
			fail.record(err)
			break
		}
		seq++
	}
	if err := sc.Err(); err != nil {
		// Close early as if exhausted so workers drain and exit.
		fail.record(fmt.Errorf("read input: %w", err))
	}
	qA.Close()

	wgWorkers.Wait()
	wgWriter.Wait()

	if err := out.Flush(); err != nil {
		fail.record(fmt.Errorf("flush output: %w", err))
	}

	res := Result{
		LinesProcessed: stats.processed.Load(),
		LinesWritten:   stats.written.Load(),
		Projected:      stats.projected.Load(),
		PassedThrough:  stats.passedThrough.Load(),
		MatchedSamples: len(proj.Indices),
		TotalSamples:   proj.TotalSamples,
	}
	return res, fail.get()
}

// resolveFromStream consumes lines up to and including the column header,
// forwarding earlier meta lines via writeLine, and resolves the projection.
// Reaching EOF without a header is a format error.
func resolveFromStream(sc *bufio.Scanner, samples filter.SampleSet, writeLine func(string) error) (*filter.Projection, error) {
	for sc.Scan() {
		line := sc.Text()
		if filter.IsHeaderLine(line) {
			return filter.ResolveHeader(line, samples)
		}
		if !filter.IsMetaLine(line) {
			return nil, fmt.Errorf("%w: data record before column header", filter.ErrFormat)
		}
		if err := writeLine(line); err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return nil, fmt.Errorf("%w: no column header before end of input", filter.ErrFormat)
}

// runWorker pops raw records until Queue A reports end-of-stream, transforms
// them, and pushes the result with the same sequence number to Queue B.
// Comment records pass through unchanged.
func runWorker(ctx context.Context, proj *filter.Projection, qA, qB *queue.Queue[record], stats *counters) {
	for {
		rec, ok := qA.Pop(ctx)
		if !ok {
			return
		}
		text := rec.text
		switch {
		case filter.IsMetaLine(text), filter.Degraded(text):
			stats.passedThrough.Add(1)
		default:
			text = proj.Project(text)
			stats.projected.Add(1)
		}
		stats.processed.Add(1)
		if err := qB.Push(ctx, record{seq: rec.seq, text: text}); err != nil {
			return
		}
	}
}

// runWriter drains Queue B and emits records in strictly increasing sequence
// order. Records arriving early wait in a buffer keyed by sequence number;
// each arrival flushes the contiguous run starting at the next expected
// number, and each flushed record returns its in-flight token so the reader
// may admit the next line. The buffer therefore never holds more than the
// token capacity. After a write error the writer records it once and keeps
// draining so upstream stages never block.
func runWriter(ctx context.Context, qB *queue.Queue[record], writeLine func(string) error, progress func(int64), stats *counters, fail *firstErr, tokens <-chan struct{}) {
	var expect uint64
	var emitted int64
	pending := make(map[uint64]string)
	failed := false

	for {
		rec, ok := qB.Pop(ctx)
		if !ok {
			return
		}
		pending[rec.seq] = rec.text

		for {
			text, ready := pending[expect]
			if !ready {
				break
			}
			delete(pending, expect)
			expect++
			<-tokens

			if failed {
				continue
			}
			if err := writeLine(text); err != nil {
				fail.record(fmt.Errorf("write output: %w", err))
				failed = true
				continue
			}
			emitted++
			if progress != nil && emitted%progressEvery == 0 {
				progress(emitted)
			}
		}
	}
}
