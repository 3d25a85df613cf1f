// internal/params/params.go

// Package params holds the primer-design parameters pushed into the target
// form, their validation, and named presets.
package params

import (
	"fmt"
	"sync/atomic"
)

// Parameters is one complete set of form values. Values are copied, never
// shared; build a new value with New to change anything.
type Parameters struct {
	PCRMin int `yaml:"pcr_min" json:"pcr_min"`
	PCRMax int `yaml:"pcr_max" json:"pcr_max"`

	TmMin     float64 `yaml:"tm_min" json:"tm_min"`
	TmOpt     float64 `yaml:"tm_opt" json:"tm_opt"`
	TmMax     float64 `yaml:"tm_max" json:"tm_max"`
	TmMaxDiff float64 `yaml:"tm_max_diff" json:"tm_max_diff"`

	PrimerMinSize int `yaml:"primer_min_size" json:"primer_min_size"`
	PrimerOptSize int `yaml:"primer_opt_size" json:"primer_opt_size"`
	PrimerMaxSize int `yaml:"primer_max_size" json:"primer_max_size"`

	NumReturn int `yaml:"num_return" json:"num_return"`
	EndGCMax  int `yaml:"end_gc_max" json:"end_gc_max"`
	MaxPolyX  int `yaml:"max_poly_x" json:"max_poly_x"`

	// Flank lengths offered as primer search windows around the target.
	ExtensionLeft  int `yaml:"extension_left" json:"extension_left"`
	ExtensionRight int `yaml:"extension_right" json:"extension_right"`
}

// Defaults returns the stock parameter set.
func Defaults() Parameters {
	return Parameters{
		PCRMin:         100,
		PCRMax:         1200,
		TmMin:          58,
		TmOpt:          60,
		TmMax:          62,
		TmMaxDiff:      2,
		PrimerMinSize:  18,
		PrimerOptSize:  20,
		PrimerMaxSize:  25,
		NumReturn:      10,
		EndGCMax:       4,
		MaxPolyX:       4,
		ExtensionLeft:  800,
		ExtensionRight: 800,
	}
}

// ValidationError names the offending field and the bound it broke.
type ValidationError struct {
	Field string
	Value string
	Bound string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%s): must be %s", e.Field, e.Value, e.Bound)
}

// New validates p and returns it. The returned value is safe to pass around
// by copy.
func New(p Parameters) (Parameters, error) {
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

func intRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: fmt.Sprint(v), Bound: fmt.Sprintf("between %d and %d", lo, hi)}
	}
	return nil
}

func floatOpen(field string, v, lo, hi float64) error {
	if v <= lo || v >= hi {
		return &ValidationError{Field: field, Value: fmt.Sprint(v), Bound: fmt.Sprintf("greater than %g and less than %g", lo, hi)}
	}
	return nil
}

// Validate checks field ranges first, then the cross-field invariants. The
// first violation is returned.
func (p Parameters) Validate() error {
	checks := []error{
		intRange("pcr_min", p.PCRMin, 50, 30000),
		intRange("pcr_max", p.PCRMax, 50, 30000),
		floatOpen("tm_min", p.TmMin, 30, 95),
		floatOpen("tm_opt", p.TmOpt, 30, 95),
		floatOpen("tm_max", p.TmMax, 30, 95),
	}
	if p.TmMaxDiff < 0 || p.TmMaxDiff > 10 {
		checks = append(checks, &ValidationError{Field: "tm_max_diff", Value: fmt.Sprint(p.TmMaxDiff), Bound: "between 0 and 10"})
	}
	checks = append(checks,
		intRange("primer_min_size", p.PrimerMinSize, 10, 40),
		intRange("primer_opt_size", p.PrimerOptSize, 10, 40),
		intRange("primer_max_size", p.PrimerMaxSize, 10, 40),
		intRange("num_return", p.NumReturn, 1, 50),
		intRange("end_gc_max", p.EndGCMax, 0, 5),
		intRange("max_poly_x", p.MaxPolyX, 0, 10),
	)
	if p.ExtensionLeft < 0 {
		checks = append(checks, &ValidationError{Field: "extension_left", Value: fmt.Sprint(p.ExtensionLeft), Bound: "at least 0"})
	}
	if p.ExtensionRight < 0 {
		checks = append(checks, &ValidationError{Field: "extension_right", Value: fmt.Sprint(p.ExtensionRight), Bound: "at least 0"})
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if p.PCRMax <= p.PCRMin {
		return &ValidationError{Field: "pcr_max", Value: fmt.Sprint(p.PCRMax), Bound: fmt.Sprintf("greater than pcr_min (%d)", p.PCRMin)}
	}
	if p.TmOpt <= p.TmMin {
		return &ValidationError{Field: "tm_opt", Value: fmt.Sprint(p.TmOpt), Bound: fmt.Sprintf("greater than tm_min (%g)", p.TmMin)}
	}
	if p.TmOpt >= p.TmMax {
		return &ValidationError{Field: "tm_opt", Value: fmt.Sprint(p.TmOpt), Bound: fmt.Sprintf("less than tm_max (%g)", p.TmMax)}
	}
	if spread := p.TmMax - p.TmMin; spread < p.TmMaxDiff {
		return &ValidationError{Field: "tm_max_diff", Value: fmt.Sprint(p.TmMaxDiff), Bound: fmt.Sprintf("at most the Tm spread tm_max-tm_min (%g)", spread)}
	}
	if p.PrimerOptSize < p.PrimerMinSize {
		return &ValidationError{Field: "primer_opt_size", Value: fmt.Sprint(p.PrimerOptSize), Bound: fmt.Sprintf("at least primer_min_size (%d)", p.PrimerMinSize)}
	}
	if p.PrimerMaxSize < p.PrimerOptSize {
		return &ValidationError{Field: "primer_max_size", Value: fmt.Sprint(p.PrimerMaxSize), Bound: fmt.Sprintf("at least primer_opt_size (%d)", p.PrimerOptSize)}
	}
	return nil
}

// Current holds the parameter set in effect for a running batch. The front
// end stores new values while the worker loads them before each submission.
type Current struct {
	v atomic.Pointer[Parameters]
}

// NewCurrent validates p and wraps it.
func NewCurrent(p Parameters) (*Current, error) {
	c := &Current{}
	if err := c.Store(p); err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns a copy of the current parameters.
func (c *Current) Load() Parameters {
	if p := c.v.Load(); p != nil {
		return *p
	}
	return Defaults()
}

// Store replaces the current parameters if p is valid.
func (c *Current) Store(p Parameters) error {
	p, err := New(p)
	if err != nil {
		return err
	}
	c.v.Store(&p)
	return nil
}
