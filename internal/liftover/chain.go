// internal/liftover/chain.go

// Package liftover maps genomic positions between reference builds using a
// UCSC chain file.
package liftover

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrNoMapping means the position is not covered by any aligned block.
	ErrNoMapping = errors.New("no mapping for locus")

	// ErrInvalidChain means the chain file could not be parsed.
	ErrInvalidChain = errors.New("invalid chain file")
)

// Hit is one mapped position in the target build. Position is 0-based.
type Hit struct {
	Chromosome string
	Position   int
	Strand     byte
	Score      int64
}

// block is one ungapped alignment block. Source coordinates are half-open
// [srcStart, srcEnd) on the source chromosome; dstStart is the block start on
// the destination strand.
type block struct {
	srcStart  int
	srcEnd    int
	dstName   string
	dstStart  int
	dstSize   int
	dstStrand byte
	score     int64
}

type chromIndex struct {
	blocks []block
	// maxEnd[i] is the largest srcEnd among blocks[0..i].
	maxEnd []int
}

// Chain is an immutable, indexed chain file.
type Chain struct {
	index  map[string]*chromIndex
	chains int
}

// Open loads a chain file from disk. Gzip input is detected by magic number
// or a .gz suffix.
func Open(path string) (*Chain, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	c, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openReader(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var sig [2]byte
	n, _ := fh.Read(sig[:])
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		_ = fh.Close()
		return nil, err
	}
	if (n == 2 && sig[0] == 0x1f && sig[1] == 0x8b) || strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidChain, err)
		}
		return &multiReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
	}
	return fh, nil
}

// header holds the fields of a "chain" line that the index needs.
type header struct {
	score     int64
	srcName   string
	srcStart  int
	srcEnd    int
	dstName   string
	dstSize   int
	dstStrand byte
	dstStart  int
	dstEnd    int
}

func parseHeader(fields []string) (header, error) {
	// chain score tName tSize tStrand tStart tEnd qName qSize qStrand qStart qEnd id
	if len(fields) < 12 {
		return header{}, fmt.Errorf("chain header has %d fields, want at least 12", len(fields))
	}
	var h header
	var err error
	if h.score, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return header{}, fmt.Errorf("bad score %q", fields[1])
	}
	h.srcName = fields[2]
	if fields[4] != "+" {
		return header{}, fmt.Errorf("source strand %q not supported", fields[4])
	}
	ints := []struct {
		dst *int
		raw string
	}{
		{&h.srcStart, fields[5]},
		{&h.srcEnd, fields[6]},
		{&h.dstSize, fields[8]},
		{&h.dstStart, fields[10]},
		{&h.dstEnd, fields[11]},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(f.raw)
		if err != nil || v < 0 {
			return header{}, fmt.Errorf("bad coordinate %q", f.raw)
		}
		*f.dst = v
	}
	h.dstName = fields[7]
	switch fields[9] {
	case "+":
		h.dstStrand = '+'
	case "-":
		h.dstStrand = '-'
	default:
		return header{}, fmt.Errorf("bad strand %q", fields[9])
	}
	if h.srcEnd < h.srcStart || h.dstEnd < h.dstStart {
		return header{}, fmt.Errorf("chain end before start")
	}
	return h, nil
}

// Parse reads chain records from r and builds the lookup index. An input
// without a single chain is rejected.
func Parse(r io.Reader) (*Chain, error) {
	c := &Chain{index: make(map[string]*chromIndex)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cur    *header
		src    int
		dst    int
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		if fields[0] == "chain" {
			if cur != nil {
				return nil, fmt.Errorf("%w: line %d: chain started before previous chain ended", ErrInvalidChain, lineNo)
			}
			h, err := parseHeader(fields)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidChain, lineNo, err)
			}
			cur = &h
			src, dst = h.srcStart, h.dstStart
			c.chains++
			continue
		}

		if cur == nil {
			return nil, fmt.Errorf("%w: line %d: alignment data outside a chain", ErrInvalidChain, lineNo)
		}

		nums := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: line %d: bad number %q", ErrInvalidChain, lineNo, f)
			}
			nums[i] = v
		}

		switch len(nums) {
		case 3, 1:
			size := nums[0]
			c.add(cur.srcName, block{
				srcStart:  src,
				srcEnd:    src + size,
				dstName:   cur.dstName,
				dstStart:  dst,
				dstSize:   cur.dstSize,
				dstStrand: cur.dstStrand,
				score:     cur.score,
			})
			src += size
			dst += size
			if len(nums) == 3 {
				src += nums[1]
				dst += nums[2]
				continue
			}
			if src != cur.srcEnd {
				return nil, fmt.Errorf("%w: line %d: chain blocks end at %d, header says %d", ErrInvalidChain, lineNo, src, cur.srcEnd)
			}
			cur = nil
		default:
			return nil, fmt.Errorf("%w: line %d: expected 1 or 3 numbers, got %d", ErrInvalidChain, lineNo, len(nums))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	if cur != nil {
		return nil, fmt.Errorf("%w: truncated chain at end of input", ErrInvalidChain)
	}
	if c.chains == 0 {
		return nil, fmt.Errorf("%w: no chains found", ErrInvalidChain)
	}

	for _, ci := range c.index {
		sort.Slice(ci.blocks, func(i, j int) bool {
			return ci.blocks[i].srcStart < ci.blocks[j].srcStart
		})
		ci.maxEnd = make([]int, len(ci.blocks))
		m := 0
		for i, b := range ci.blocks {
			if b.srcEnd > m {
				m = b.srcEnd
			}
			ci.maxEnd[i] = m
		}
	}
	return c, nil
}

func (c *Chain) add(chrom string, b block) {
	if b.srcEnd <= b.srcStart {
		return
	}
	ci, ok := c.index[chrom]
	if !ok {
		ci = &chromIndex{}
		c.index[chrom] = ci
	}
	ci.blocks = append(ci.blocks, b)
}

// Chains returns the number of chain records loaded.
func (c *Chain) Chains() int {
	return c.chains
}

// Lookup maps a 0-based position on chrom. Hits are ordered by chain score,
// best first. ErrNoMapping is returned when no block covers the position.
func (c *Chain) Lookup(chrom string, pos int) ([]Hit, error) {
	ci, ok := c.index[chrom]
	if !ok || pos < 0 {
		return nil, fmt.Errorf("%w: %s:%d", ErrNoMapping, chrom, pos)
	}

	// First block starting after pos; every candidate lies before it.
	i := sort.Search(len(ci.blocks), func(i int) bool {
		return ci.blocks[i].srcStart > pos
	})

	var hits []Hit
	for j := i - 1; j >= 0 && ci.maxEnd[j] > pos; j-- {
		b := ci.blocks[j]
		if pos >= b.srcEnd {
			continue
		}
		off := pos - b.srcStart
		p := b.dstStart + off
		if b.dstStrand == '-' {
			p = b.dstSize - 1 - p
		}
		hits = append(hits, Hit{
			Chromosome: b.dstName,
			Position:   p,
			Strand:     b.dstStrand,
			Score:      b.score,
		})
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: %s:%d", ErrNoMapping, chrom, pos)
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	return hits, nil
}
