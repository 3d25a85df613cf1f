// internal/coords/build.go
package coords

import (
	"fmt"
	"strings"
)

// Build identifies a reference genome build by its display label.
type Build string

const (
	// Legacy is the build that needs liftover before submission.
	Legacy Build = "hg19/GRCh37"
	// Current is the build the target site resolves accessions against.
	Current Build = "hg38/GRCh38"
)

// Builds lists the accepted build labels.
var Builds = []Build{Legacy, Current}

// ParseBuild accepts the full label or a short alias (hg19, grch37, hg38, grch38).
func ParseBuild(s string) (Build, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hg19/grch37", "hg19", "grch37":
		return Legacy, nil
	case "hg38/grch38", "hg38", "grch38":
		return Current, nil
	}
	return "", fmt.Errorf("unknown genome build %q (want one of %s)", s, BuildNames())
}

// BuildNames joins the accepted build labels for help and error text.
func BuildNames() string {
	names := make([]string, len(Builds))
	for i, b := range Builds {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

func (b Build) String() string { return string(b) }

// NeedsConversion reports whether coordinates in this build are lifted over
// before accession lookup.
func (b Build) NeedsConversion() bool { return b == Legacy }

// AccessionTable maps a normalized chromosome name to a RefSeq accession.
type AccessionTable map[string]string

// Accessions holds one table per build. It is built once and shared.
type Accessions struct {
	tables map[Build]AccessionTable
}

// Lookup returns the accession for chrom in build, or "" when unknown.
func (a *Accessions) Lookup(build Build, chrom string) string {
	t, ok := a.tables[build]
	if !ok {
		return ""
	}
	return t[NormalizeChromosome(chrom)]
}

// DefaultAccessions returns the RefSeq assembled-chromosome accessions for
// GRCh37 and GRCh38. 23 and 24 alias X and Y.
func DefaultAccessions() *Accessions {
	return &Accessions{tables: map[Build]AccessionTable{
		Legacy: {
			"1": "NC_000001.10", "2": "NC_000002.11", "3": "NC_000003.11",
			"4": "NC_000004.11", "5": "NC_000005.9", "6": "NC_000006.11",
			"7": "NC_000007.13", "8": "NC_000008.10", "9": "NC_000009.11",
			"10": "NC_000010.10", "11": "NC_000011.9", "12": "NC_000012.11",
			"13": "NC_000013.10", "14": "NC_000014.8", "15": "NC_000015.9",
			"16": "NC_000016.9", "17": "NC_000017.10", "18": "NC_000018.9",
			"19": "NC_000019.9", "20": "NC_000020.10", "21": "NC_000021.8",
			"22": "NC_000022.10", "x": "NC_000023.10", "23": "NC_000023.10",
			"y": "NC_000024.9", "24": "NC_000024.9",
		},
		Current: {
			"1": "NC_000001.11", "2": "NC_000002.12", "3": "NC_000003.12",
			"4": "NC_000004.12", "5": "NC_000005.10", "6": "NC_000006.12",
			"7": "NC_000007.14", "8": "NC_000008.11", "9": "NC_000009.12",
			"10": "NC_000010.11", "11": "NC_000011.10", "12": "NC_000012.12",
			"13": "NC_000013.11", "14": "NC_000014.9", "15": "NC_000015.10",
			"16": "NC_000016.10", "17": "NC_000017.11", "18": "NC_000018.10",
			"19": "NC_000019.10", "20": "NC_000020.11", "21": "NC_000021.9",
			"22": "NC_000022.11", "x": "NC_000023.11", "23": "NC_000023.11",
			"y": "NC_000024.10", "24": "NC_000024.10",
		},
	}}
}

// NormalizeChromosome lowercases and strips a leading "chr".
func NormalizeChromosome(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "chr")
}

// ChainName converts a normalized chromosome to the UCSC name used in chain
// files: chr1..chr22, chrX, chrY. 23 and 24 map to X and Y.
func ChainName(chrom string) string {
	c := NormalizeChromosome(chrom)
	switch c {
	case "x", "23":
		return "chrX"
	case "y", "24":
		return "chrY"
	}
	return "chr" + c
}
