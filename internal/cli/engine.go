// internal/cli/engine.go
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/config"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/locator"
	"github.com/primer-cli/primerbatch/internal/params"
)

// engine is the wired set of components behind run, check and serve.
type engine struct {
	resolver     *coords.Resolver
	session      *browser.Session
	orchestrator *batch.Orchestrator
}

// loadResolver opens the configured chain. A missing chain is not fatal
// here: batches in the current build never need it and legacy batches
// fail with a clear error before the browser starts.
func loadResolver(c *config.Config, chainOverride string, log *slog.Logger) *coords.Resolver {
	path := c.Genome.ChainFile
	if chainOverride != "" {
		path = chainOverride
	}
	r, err := coords.LoadResolver(path, log)
	if err != nil {
		log.Warn("liftover unavailable", "path", path, "err", err)
		return coords.NewResolver(nil, nil, log)
	}
	return r
}

func newSession(c *config.Config, opts browser.Options, log *slog.Logger) (*browser.Session, error) {
	drv := browser.NewChromeDriver(log)
	loc := locator.New(drv, nil, log)
	if err := c.ApplyLocators(loc); err != nil {
		return nil, err
	}
	return browser.NewSession(drv, loc, opts, log), nil
}

func newEngine(c *config.Config, opts browser.Options, chainOverride string, obs batch.Observer, log *slog.Logger) (*engine, error) {
	session, err := newSession(c, opts, log)
	if err != nil {
		return nil, err
	}
	resolver := loadResolver(c, chainOverride, log)
	return &engine{
		resolver:     resolver,
		session:      session,
		orchestrator: batch.New(session, resolver, obs, c.BatchOptions(), log),
	}, nil
}

func (e *engine) Close() {
	e.session.Close()
}

// readInput reads coordinates from a file argument, "-" or stdin.
func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", NewUsageError(fmt.Sprintf("input file %s not found", args[0]))
		}
		return "", err
	}
	return string(data), nil
}

// resolveParameters picks the base parameter set (named preset, default
// preset or built-in defaults) and overlays changed flags.
func resolveParameters(c *config.Config, preset string, pf *paramFlags) (params.Parameters, string, error) {
	base, name, err := params.NewStore(c.PresetsFile).Resolve(preset)
	if err != nil {
		return params.Parameters{}, "", err
	}
	p, err := pf.apply(base)
	if err != nil {
		return params.Parameters{}, "", err
	}
	return p, name, nil
}

// recordView is the output form of a parsed input line.
type recordView struct {
	Line       int    `json:"line"`
	Raw        string `json:"raw"`
	Chromosome string `json:"chromosome,omitempty"`
	Position   int    `json:"position,omitempty"`
	Error      string `json:"error,omitempty"`
}

func viewRecords(recs []coords.Record) []recordView {
	out := make([]recordView, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordView{
			Line:       r.LineNumber,
			Raw:        r.Raw,
			Chromosome: r.Chromosome,
			Position:   r.Position,
			Error:      r.ErrorMessage(),
		})
	}
	return out
}

func indentLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "  " + strings.Join(lines, "\n  ")
}
