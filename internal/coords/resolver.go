// internal/coords/resolver.go

// Package coords validates genomic coordinates, lifts legacy-build positions
// over to the current build and maps chromosomes to reference accessions.
package coords

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/primer-cli/primerbatch/internal/liftover"
)

// ErrConverterUnavailable means no chain file was loaded. It is a
// configuration fault, distinct from liftover.ErrNoMapping for one locus.
var ErrConverterUnavailable = errors.New("coordinate converter not initialized")

// Conversion is the result of a build-to-build conversion. Err is non-nil
// exactly when no current-build coordinate was produced.
type Conversion struct {
	Chromosome string
	Position   int
	Err        error
}

// Converter looks up 0-based positions on UCSC chromosome names.
type Converter interface {
	Lookup(chrom string, pos int) ([]liftover.Hit, error)
}

// Resolver bundles validation, conversion and accession lookup.
type Resolver struct {
	converter  Converter
	accessions *Accessions
	logger     *slog.Logger
}

// NewResolver creates a resolver. converter may be nil, in which case every
// conversion reports ErrConverterUnavailable.
func NewResolver(converter Converter, accessions *Accessions, logger *slog.Logger) *Resolver {
	if accessions == nil {
		accessions = DefaultAccessions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		converter:  converter,
		accessions: accessions,
		logger:     logger.With("comp", "coords"),
	}
}

// LoadResolver opens chainPath and returns a resolver backed by it. A
// missing or unreadable chain file is returned as an error here, never
// deferred to the first conversion.
func LoadResolver(chainPath string, logger *slog.Logger) (*Resolver, error) {
	chain, err := liftover.Open(chainPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}
	r := NewResolver(chain, nil, logger)
	r.logger.Info("liftover chain loaded", "path", chainPath, "chains", chain.Chains())
	return r, nil
}

// CanConvert reports whether a conversion backend is present.
func (r *Resolver) CanConvert() bool {
	return r.converter != nil
}

// ParseLine delegates to the package-level parser.
func (r *Resolver) ParseLine(lineNumber int, line string) Record {
	return ParseLine(lineNumber, line)
}

// ValidateBatch partitions text into valid and invalid records. The build
// does not change validation; it is accepted so callers pass one context.
func (r *Resolver) ValidateBatch(text string, build Build) (valid, invalid []Record) {
	valid, invalid = ValidateBatch(text)
	r.logger.Debug("batch validated", "build", build, "valid", len(valid), "invalid", len(invalid))
	return valid, invalid
}

// ConvertBuild lifts a legacy-build position (1-based) to the current build.
// It never panics or returns a bare error; failures are carried in Err.
func (r *Resolver) ConvertBuild(chrom string, pos int) Conversion {
	if r.converter == nil {
		return Conversion{Err: ErrConverterUnavailable}
	}
	if pos <= 0 {
		return Conversion{Err: fmt.Errorf("%w: position %d", ErrPosition, pos)}
	}

	name := ChainName(chrom)
	hits, err := r.converter.Lookup(name, pos-1)
	if err != nil {
		r.logger.Warn("liftover failed", "chrom", chrom, "pos", pos, "err", err)
		return Conversion{Err: fmt.Errorf("no %s coordinate for %s:%d: %w", Current, chrom, pos, err)}
	}
	if len(hits) == 0 {
		return Conversion{Err: fmt.Errorf("no %s coordinate for %s:%d: %w", Current, chrom, pos, liftover.ErrNoMapping)}
	}

	h := hits[0]
	out := Conversion{
		Chromosome: strings.ToLower(strings.TrimPrefix(h.Chromosome, "chr")),
		Position:   h.Position + 1,
	}
	r.logger.Debug("liftover ok", "from", fmt.Sprintf("%s:%d", chrom, pos), "to", fmt.Sprintf("%s:%d", out.Chromosome, out.Position))
	return out
}

// ResolveAccession returns the accession for chrom in build, or "" when the
// chromosome is unknown.
func (r *Resolver) ResolveAccession(chrom string, build Build) string {
	return r.accessions.Lookup(build, chrom)
}
