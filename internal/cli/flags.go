// internal/cli/flags.go
package cli

import (
	"github.com/spf13/pflag"

	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/params"
)

// buildValue is a pflag.Value accepting any genome build alias.
type buildValue struct {
	build coords.Build
	set   bool
}

func (b *buildValue) String() string { return string(b.build) }
func (b *buildValue) Type() string   { return "build" }

func (b *buildValue) Set(s string) error {
	v, err := coords.ParseBuild(s)
	if err != nil {
		return err
	}
	b.build = v
	b.set = true
	return nil
}

// or returns the flag value when set, else def.
func (b *buildValue) or(def coords.Build) coords.Build {
	if b.set {
		return b.build
	}
	return def
}

// kindValue is a pflag.Value for the browser engine.
type kindValue struct {
	kind browser.Kind
	set  bool
}

func (k *kindValue) String() string { return string(k.kind) }
func (k *kindValue) Type() string   { return "browser" }

func (k *kindValue) Set(s string) error {
	v, err := browser.ParseKind(s)
	if err != nil {
		return err
	}
	k.kind = v
	k.set = true
	return nil
}

func (k *kindValue) or(def browser.Kind) browser.Kind {
	if k.set {
		return k.kind
	}
	return def
}

// paramFlags binds one flag per primer design parameter. Only flags the
// user changed are applied on top of a base parameter set.
type paramFlags struct {
	fs *pflag.FlagSet
	v  params.Parameters
}

func addParamFlags(fs *pflag.FlagSet) *paramFlags {
	pf := &paramFlags{fs: fs, v: params.Defaults()}
	fs.IntVar(&pf.v.PCRMin, "pcr-min", pf.v.PCRMin, "Minimum PCR product size")
	fs.IntVar(&pf.v.PCRMax, "pcr-max", pf.v.PCRMax, "Maximum PCR product size")
	fs.Float64Var(&pf.v.TmMin, "tm-min", pf.v.TmMin, "Minimum primer melting temperature")
	fs.Float64Var(&pf.v.TmOpt, "tm-opt", pf.v.TmOpt, "Optimal primer melting temperature")
	fs.Float64Var(&pf.v.TmMax, "tm-max", pf.v.TmMax, "Maximum primer melting temperature")
	fs.Float64Var(&pf.v.TmMaxDiff, "tm-max-diff", pf.v.TmMaxDiff, "Maximum Tm difference between primers")
	fs.IntVar(&pf.v.PrimerMinSize, "primer-min-size", pf.v.PrimerMinSize, "Minimum primer length")
	fs.IntVar(&pf.v.PrimerOptSize, "primer-opt-size", pf.v.PrimerOptSize, "Optimal primer length")
	fs.IntVar(&pf.v.PrimerMaxSize, "primer-max-size", pf.v.PrimerMaxSize, "Maximum primer length")
	fs.IntVar(&pf.v.NumReturn, "num-return", pf.v.NumReturn, "Number of primer pairs to return")
	fs.IntVar(&pf.v.EndGCMax, "end-gc-max", pf.v.EndGCMax, "Maximum GC count in the 3' end")
	fs.IntVar(&pf.v.MaxPolyX, "max-poly-x", pf.v.MaxPolyX, "Maximum mononucleotide run")
	fs.IntVar(&pf.v.ExtensionLeft, "ext-left", pf.v.ExtensionLeft, "Bases upstream of the target for the forward primer window")
	fs.IntVar(&pf.v.ExtensionRight, "ext-right", pf.v.ExtensionRight, "Bases downstream of the target for the reverse primer window")
	return pf
}

// apply overlays changed flags on base and validates the result.
func (pf *paramFlags) apply(base params.Parameters) (params.Parameters, error) {
	out := base
	set := map[string]func(){
		"pcr-min":         func() { out.PCRMin = pf.v.PCRMin },
		"pcr-max":         func() { out.PCRMax = pf.v.PCRMax },
		"tm-min":          func() { out.TmMin = pf.v.TmMin },
		"tm-opt":          func() { out.TmOpt = pf.v.TmOpt },
		"tm-max":          func() { out.TmMax = pf.v.TmMax },
		"tm-max-diff":     func() { out.TmMaxDiff = pf.v.TmMaxDiff },
		"primer-min-size": func() { out.PrimerMinSize = pf.v.PrimerMinSize },
		"primer-opt-size": func() { out.PrimerOptSize = pf.v.PrimerOptSize },
		"primer-max-size": func() { out.PrimerMaxSize = pf.v.PrimerMaxSize },
		"num-return":      func() { out.NumReturn = pf.v.NumReturn },
		"end-gc-max":      func() { out.EndGCMax = pf.v.EndGCMax },
		"max-poly-x":      func() { out.MaxPolyX = pf.v.MaxPolyX },
		"ext-left":        func() { out.ExtensionLeft = pf.v.ExtensionLeft },
		"ext-right":       func() { out.ExtensionRight = pf.v.ExtensionRight },
	}
	pf.fs.Visit(func(f *pflag.Flag) {
		if fn, ok := set[f.Name]; ok {
			fn()
		}
	})
	return params.New(out)
}
