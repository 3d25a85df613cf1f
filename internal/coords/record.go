// internal/coords/record.go
package coords

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Input error categories. A record's Err wraps exactly one of these.
var (
	ErrFormat     = errors.New("format error")
	ErrChromosome = errors.New("chromosome error")
	ErrPosition   = errors.New("position error")
)

// ParseError describes why a line was rejected.
type ParseError struct {
	Kind   error
	Token  string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: %q: %s", e.Kind, e.Token, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// Record is the validation result for one input line. Chromosome is
// lowercase without a "chr" prefix; Position is positive. Records are values
// and are not modified after creation.
type Record struct {
	LineNumber int
	Raw        string
	Valid      bool
	Chromosome string
	Position   int
	Err        error
}

// ErrorMessage returns the rejection reason, or "" for valid records.
func (r Record) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r Record) String() string {
	if !r.Valid {
		return fmt.Sprintf("[%d] %q: %v", r.LineNumber, r.Raw, r.Err)
	}
	return fmt.Sprintf("[%d] %s:%d", r.LineNumber, r.Chromosome, r.Position)
}

var allowedChromosomes = func() map[string]bool {
	m := map[string]bool{"x": true, "y": true}
	for i := 1; i <= 24; i++ {
		m[strconv.Itoa(i)] = true
	}
	return m
}()

// IsSupportedChromosome reports whether chrom (any case, optional "chr") is
// one of 1..24, X, Y.
func IsSupportedChromosome(chrom string) bool {
	return allowedChromosomes[NormalizeChromosome(chrom)]
}

// ParseLine validates a single "<chromosome> <position>" line. Extra tokens
// after the position are ignored.
func ParseLine(lineNumber int, line string) Record {
	raw := strings.TrimSpace(line)
	rec := Record{LineNumber: lineNumber, Raw: raw}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		rec.Err = &ParseError{
			Kind:   ErrFormat,
			Detail: fmt.Sprintf("need at least 2 columns, got %d", len(fields)),
		}
		return rec
	}

	chrom := NormalizeChromosome(fields[0])
	if !allowedChromosomes[chrom] {
		rec.Err = &ParseError{
			Kind:   ErrChromosome,
			Token:  fields[0],
			Detail: "unsupported chromosome (want 1-24, X, Y)",
		}
		return rec
	}

	pos, err := parsePosition(fields[1])
	if err != nil {
		rec.Err = err
		return rec
	}

	rec.Valid = true
	rec.Chromosome = chrom
	rec.Position = pos
	return rec
}

func parsePosition(tok string) (int, error) {
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, &ParseError{Kind: ErrPosition, Token: tok, Detail: "must be a positive integer"}
		}
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, &ParseError{Kind: ErrPosition, Token: tok, Detail: "out of range"}
	}
	if v <= 0 {
		return 0, &ParseError{Kind: ErrPosition, Token: tok, Detail: "must be greater than 0"}
	}
	return v, nil
}

// ValidateBatch parses every non-blank line of text and partitions the
// results. Line numbers are 1-based and count blank lines; each partition
// keeps input order.
func ValidateBatch(text string) (valid, invalid []Record) {
	for i, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec := ParseLine(i+1, line)
		if rec.Valid {
			valid = append(valid, rec)
		} else {
			invalid = append(invalid, rec)
		}
	}
	return valid, invalid
}

// ParseLenient is the skip-validation path: any line with two tokens and a
// positive integer position is accepted without checking the chromosome
// set. Unsupported chromosomes surface later as failed accession lookups.
func ParseLenient(text string) (accepted, rejected []Record) {
	for i, line := range splitLines(text) {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		rec := Record{LineNumber: i + 1, Raw: raw}
		fields := strings.Fields(raw)
		if len(fields) < 2 {
			rec.Err = &ParseError{Kind: ErrFormat, Detail: fmt.Sprintf("need at least 2 columns, got %d", len(fields))}
			rejected = append(rejected, rec)
			continue
		}
		pos, err := parsePosition(fields[1])
		if err != nil {
			rec.Err = err
			rejected = append(rejected, rec)
			continue
		}
		rec.Valid = true
		rec.Chromosome = NormalizeChromosome(fields[0])
		rec.Position = pos
		accepted = append(accepted, rec)
	}
	return accepted, rejected
}

// splitLines splits on \n and drops the \r of CRLF input.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
