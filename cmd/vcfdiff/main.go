// Command vcfdiff prints data lines from one VCF that are absent from
// another. Typical use is checking a filter run against a known-good
// output, where both files are large and mostly identical.
//
// Key techniques:
//   - A compact two-level index over 48-bit xxh3 hashes of baseline
//     lines: top 16 bits select a bin; within each bin, low 32-bit
//     tails are sorted.
//   - Parallel scanning of the candidate via disjoint byte ranges,
//     aligned to newlines.
//   - Kernel readahead hints (fadvise) for large sequential scans.
//
// Inputs must be uncompressed; gunzip .vcf.gz files first. Membership
// is by 48-bit hash, so a collision can mask a differing line; for a
// change-spotting tool over files that are expected to match, that
// trade is worth the 4-bytes-per-line footprint.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const (
	// Reader buffer used while indexing the baseline.
	readBufSize = 4 << 20

	// Buffered writer for stdout to amortize syscalls.
	writeBufSize = 4 << 20

	// Minimum byte range per worker when splitting the candidate.
	defaultBlock = 2 << 20

	// Per-worker read buffer and newline-alignment scratch.
	workerBufSize = 1 << 18
	alignBufSize  = 32 << 10

	// We keep 48 bits of the hash for the set index.
	hashMask48 = 0xFFFFFFFFFFFF
)

func hash48(b []byte) uint64 { return xxh3.Hash(b) & hashMask48 }

// index16 is a compact two-level set of 48-bit line hashes. The top 16
// bits select a bin; each bin holds its sorted low 32-bit tails.
// Memory is roughly 4 bytes per baseline line plus 512 KiB of offsets.
type index16 struct {
	// off has length 65,537; off[i]..off[i+1] bounds the i-th bin.
	off  []int
	data []uint32
}

// contains reports whether hash h is present. Binary search within the
// selected bin, O(log bin size).
func (idx *index16) contains(h uint64) bool {
	top := int(uint16(h >> 32))
	low := uint32(h)

	lo, hi := idx.off[top], idx.off[top+1]
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if idx.data[mid] < low {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < idx.off[top+1] && idx.data[lo] == low
}

// forEachLine streams r line by line, handling lines longer than the
// reader buffer with a carry, and calls fn with each non-empty line
// (newline stripped, trailing '\r' stripped).
func forEachLine(r *bufio.Reader, fn func(line []byte)) error {
	emit := func(line []byte) {
		if n := len(line); n > 0 && line[n-1] == '\n' {
			line = line[:n-1]
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			fn(line)
		}
	}

	var carry []byte
	for {
		chunk, err := r.ReadSlice('\n')
		switch err {
		case nil:
			if len(carry) > 0 {
				carry = append(carry, chunk...)
				emit(carry)
				carry = carry[:0]
			} else {
				emit(chunk)
			}
		case bufio.ErrBufferFull:
			carry = append(carry, chunk...)
		case io.EOF:
			emit(append(carry, chunk...))
			return nil
		default:
			return err
		}
	}
}

// buildIndex constructs the baseline set with two streaming passes:
// count per bin, then fill a single flat array, then sort each bin in
// parallel.
func buildIndex(path string) (*index16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Best-effort kernel hint: large sequential pass.
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_WILLNEED)

	r := bufio.NewReaderSize(f, readBufSize)

	counts := make([]int, 1<<16)
	if err := forEachLine(r, func(line []byte) {
		counts[uint16(hash48(line)>>32)]++
	}); err != nil {
		return nil, err
	}

	off := make([]int, (1<<16)+1)
	total := 0
	for i := 0; i < 1<<16; i++ {
		off[i] = total
		total += counts[i]
	}
	off[1<<16] = total

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r.Reset(f)

	data := make([]uint32, total)
	cursor := make([]int, len(off))
	copy(cursor, off)
	if err := forEachLine(r, func(line []byte) {
		h := hash48(line)
		top := uint16(h >> 32)
		data[cursor[top]] = uint32(h)
		cursor[top]++
	}); err != nil {
		return nil, err
	}

	// Sort bins in parallel; slices.Sort is type-specialized for uint32.
	type span struct{ lo, hi int }
	tasks := make(chan span, 256)
	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				slices.Sort(data[t.lo:t.hi])
			}
		}()
	}
	for i := 0; i < 1<<16; i++ {
		if off[i+1]-off[i] > 1 {
			tasks <- span{off[i], off[i+1]}
		}
	}
	close(tasks)
	wg.Wait()

	return &index16{off: off, data: data}, nil
}

// fileRange is a half-open byte interval within the candidate.
type fileRange struct{ start, end int64 }

// splitRanges divides size bytes into roughly equal ranges of at least
// minBlock bytes. Workers expand these to newline boundaries.
func splitRanges(size int64, parts int, minBlock int64) []fileRange {
	if size == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	chunk := size / int64(parts)
	if chunk < minBlock {
		chunk = minBlock
	}

	var ranges []fileRange
	for off := int64(0); off < size; {
		end := off + chunk
		if end > size {
			end = size
		}
		ranges = append(ranges, fileRange{off, end})
		off = end
	}
	return ranges
}

// nextNewline returns the offset just past the first '\n' at or after
// pos, or limit when none exists before limit.
func nextNewline(r io.ReaderAt, pos, limit int64) (int64, error) {
	tmp := make([]byte, alignBufSize)
	for pos < limit {
		n, err := r.ReadAt(tmp, pos)
		if n > 0 {
			if i := bytes.IndexByte(tmp[:n], '\n'); i >= 0 {
				return pos + int64(i) + 1, nil
			}
			pos += int64(n)
		}
		if err == io.EOF {
			return limit, nil
		}
		if err != nil {
			return 0, err
		}
	}
	return limit, nil
}

// scanRange reads rg (expanded to newline boundaries), collects the
// lines whose hashes are not in idx, and returns them as one chunk.
// Lines starting with '#' are never reported; headers restate metadata,
// not variants.
func scanRange(r io.ReaderAt, size int64, rg fileRange, idx *index16) ([]byte, error) {
	var err error
	if rg.start > 0 {
		if rg.start, err = nextNewline(r, rg.start, size); err != nil {
			return nil, err
		}
	}
	if rg.end < size {
		if rg.end, err = nextNewline(r, rg.end, size); err != nil {
			return nil, err
		}
	}
	if rg.start >= rg.end {
		return nil, nil
	}

	var (
		buf   = make([]byte, workerBufSize)
		carry []byte
		out   []byte
	)
	report := func(line []byte) {
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 || line[0] == '#' {
			return
		}
		if !idx.contains(hash48(line)) {
			out = append(out, line...)
			out = append(out, '\n')
		}
	}

	for pos := rg.start; pos < rg.end; {
		toRead := len(buf)
		if rem := int(rg.end - pos); rem < toRead {
			toRead = rem
		}
		n, err := r.ReadAt(buf[:toRead], pos)
		if n > 0 {
			data := buf[:n]
			if len(carry) > 0 {
				carry = append(carry, data...)
				data = carry
			}
			start := 0
			for i, c := range data {
				if c == '\n' {
					report(data[start:i])
					start = i + 1
				}
			}
			if start < len(data) {
				carry = append(carry[:0], data[start:]...)
			} else {
				carry = carry[:0]
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	report(carry)
	return out, nil
}

// diff streams candidate ranges through a worker pool and writes the
// missing lines to w. Output order follows range completion, not file
// order.
func diff(candidate *os.File, idx *index16, w io.Writer, workers int, minBlock int64) error {
	st, err := candidate.Stat()
	if err != nil {
		return fmt.Errorf("stat candidate: %w", err)
	}
	size := st.Size()

	_ = unix.Fadvise(int(candidate.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(candidate.Fd()), 0, 0, unix.FADV_WILLNEED)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ranges := splitRanges(size, workers*4, minBlock)

	jobs := make(chan fileRange, len(ranges))
	for _, rg := range ranges {
		jobs <- rg
	}
	close(jobs)

	chunks := make(chan []byte, workers)

	g, ctx := errgroup.WithContext(context.Background())
	var workersWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workersWG.Add(1)
		g.Go(func() error {
			defer workersWG.Done()
			for rg := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunk, err := scanRange(candidate, size, rg, idx)
				if err != nil {
					return err
				}
				if len(chunk) == 0 {
					continue
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workersWG.Wait()
		close(chunks)
	}()

	bw := bufio.NewWriterSize(w, writeBufSize)
	var writeErr error
	for chunk := range chunks {
		if writeErr != nil {
			continue // drain so workers never block
		}
		_, writeErr = bw.Write(chunk)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	return bw.Flush()
}

func main() {
	baseline := flag.String("a", "", "baseline VCF; its lines define the known set")
	candidate := flag.String("b", "", "candidate VCF; lines absent from the baseline are printed")
	workers := flag.Int("workers", runtime.NumCPU(), "parallel scan workers")
	block := flag.Int("block", defaultBlock, "minimum byte range per worker")
	flag.Parse()

	if *baseline == "" || *candidate == "" {
		fmt.Fprintln(os.Stderr, "both -a and -b are required")
		flag.Usage()
		os.Exit(2)
	}

	idx, err := buildIndex(*baseline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index %s: %v\n", *baseline, err)
		os.Exit(1)
	}

	f, err := os.Open(*candidate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *candidate, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := diff(f, idx, os.Stdout, *workers, int64(*block)); err != nil {
		fmt.Fprintf(os.Stderr, "diff: %v\n", err)
		os.Exit(1)
	}
}
