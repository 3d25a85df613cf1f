// internal/liftover/chain_test.go
package liftover

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Two chains on chr1: a plus-strand chain with a gap, and a minus-strand
// chain on chr2 of the destination build.
const testChain = `# comment
chain 1000 chr1 1000 + 100 300 chr1 1000 + 500 700 1
50 10 10
140

chain 500 chrX 2000 + 0 100 chrX 5000 - 1000 1100 2
100
`

func mustParse(t *testing.T, s string) *Chain {
	t.Helper()
	c, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return c
}

func TestParseCountsChains(t *testing.T) {
	c := mustParse(t, testChain)
	if c.Chains() != 2 {
		t.Errorf("Chains() = %d, want 2", c.Chains())
	}
}

func TestLookupPlusStrand(t *testing.T) {
	c := mustParse(t, testChain)

	tests := []struct {
		name string
		pos  int
		want int
	}{
		{"first base of first block", 100, 500},
		{"last base of first block", 149, 549},
		{"first base after gap", 160, 560},
		{"last base of chain", 299, 699},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := c.Lookup("chr1", tt.pos)
			if err != nil {
				t.Fatalf("Lookup(%d) error = %v", tt.pos, err)
			}
			if hits[0].Position != tt.want || hits[0].Chromosome != "chr1" {
				t.Errorf("Lookup(%d) = %s:%d, want chr1:%d", tt.pos, hits[0].Chromosome, hits[0].Position, tt.want)
			}
		})
	}
}

func TestLookupGapAndOutsideReturnNoMapping(t *testing.T) {
	c := mustParse(t, testChain)

	for _, pos := range []int{99, 150, 159, 300, 5000} {
		if _, err := c.Lookup("chr1", pos); !errors.Is(err, ErrNoMapping) {
			t.Errorf("Lookup(chr1, %d) error = %v, want ErrNoMapping", pos, err)
		}
	}
	if _, err := c.Lookup("chr7", 10); !errors.Is(err, ErrNoMapping) {
		t.Errorf("unknown chromosome error = %v, want ErrNoMapping", err)
	}
}

func TestLookupMinusStrand(t *testing.T) {
	c := mustParse(t, testChain)

	hits, err := c.Lookup("chrX", 0)
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	// qSize 5000, block starts at 1000 on the reverse strand.
	if got, want := hits[0].Position, 5000-1-1000; got != want {
		t.Errorf("position = %d, want %d", got, want)
	}
	if hits[0].Strand != '-' {
		t.Errorf("strand = %c, want -", hits[0].Strand)
	}
}

func TestLookupOrdersByScore(t *testing.T) {
	c := mustParse(t, `chain 10 chr3 1000 + 0 100 chr3 1000 + 0 100 1
100

chain 90 chr3 1000 + 50 60 chr5 1000 + 200 210 2
10
`)
	hits, err := c.Lookup("chr3", 55)
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Chromosome != "chr5" || hits[0].Position != 205 {
		t.Errorf("best hit = %+v, want chr5:205", hits[0])
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"only comments":    "# nothing\n",
		"short header":     "chain 1 chr1 100 + 0 10\n10\n",
		"data before head": "10\n",
		"bad number":       "chain 1 chr1 100 + 0 10 chr1 100 + 0 10 1\nten\n",
		"truncated":        "chain 1 chr1 100 + 0 10 chr1 100 + 0 10 1\n5 0 0\n",
		"length mismatch":  "chain 1 chr1 100 + 0 10 chr1 100 + 0 10 1\n4\n",
		"bad strand":       "chain 1 chr1 100 + 0 10 chr1 100 * 0 10 1\n10\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(in)); !errors.Is(err, ErrInvalidChain) {
				t.Errorf("Parse() error = %v, want ErrInvalidChain", err)
			}
		})
	}
}

func TestOpenGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.over.chain.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(testChain)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.Chains() != 2 {
		t.Errorf("Chains() = %d, want 2", c.Chains())
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.chain"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want not-exist", err)
	}
}
