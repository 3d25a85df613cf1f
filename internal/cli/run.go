// internal/cli/run.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
)

var (
	runBuild          buildValue
	runBrowser        kindValue
	runPreset         string
	runSkipValidation bool
	runHeadless       bool
	runChain          string
	runParams         *paramFlags
)

var runCmd = &cobra.Command{
	Use:   "run [FILE|-]",
	Short: "Submit a batch of coordinates to Primer-BLAST",
	Long: `Submit one Primer-BLAST job per "CHROM POS" line of FILE (or stdin).

Invalid lines are reported and skipped. Ctrl-C requests a stop after the
current item; a second Ctrl-C aborts immediately.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}
		p, preset, err := resolveParameters(cfg, runPreset, runParams)
		if err != nil {
			return err
		}

		opts := cfg.SessionOptions()
		if cmd.Flags().Changed("headless") {
			opts.Launch.Headless = runHeadless
		}

		obs := newConsoleObserver(os.Stderr)
		eng, err := newEngine(cfg, opts, runChain, obs, logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		stopOnSignal(ctx, eng.orchestrator, cancel)

		req := batch.Request{
			Text:           text,
			Build:          runBuild.or(cfg.DefaultBuild()),
			Browser:        runBrowser.or(cfg.BrowserKind()),
			SkipValidation: runSkipValidation,
			Parameters:     p,
		}
		runID, err := eng.orchestrator.Start(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("batch started", "run_id", runID, "build", req.Build, "browser", req.Browser, "preset", preset)

		eng.orchestrator.Wait()
		out := obs.outcome()
		if err := OutputResult(newRunResult(out, time.Since(obs.started))); err != nil {
			return err
		}
		if out.Kind == batch.OutcomeError {
			// Details are already in the result; only set the exit code.
			return errAlreadyReported
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Var(&runBuild, "build", "Input genome build: "+coords.BuildNames()+" (default from config)")
	runCmd.Flags().Var(&runBrowser, "browser", "Browser engine: "+browser.KindNames()+" (default from config)")
	runCmd.Flags().StringVar(&runPreset, "preset", "", "Parameter preset (default: the default preset, then built-in values)")
	runCmd.Flags().BoolVar(&runSkipValidation, "skip-validation", false, "Accept lines without checking the chromosome name")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser without a window")
	runCmd.Flags().StringVar(&runChain, "chain", "", "Liftover chain file (default from config)")
	runParams = addParamFlags(runCmd.Flags())
}

// stopOnSignal turns the first SIGINT/SIGTERM into a cooperative stop and
// the second into cancellation.
func stopOnSignal(ctx context.Context, o *batch.Orchestrator, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		stopping := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if stopping {
					logger.Warn("second interrupt, aborting")
					cancel()
					return
				}
				stopping = true
				if o.RequestStop() {
					fmt.Fprintln(os.Stderr, "Stopping after the current item (Ctrl-C again to abort)...")
				}
			}
		}
	}()
}

// errAlreadyReported makes the command exit non-zero without printing a
// second error.
var errAlreadyReported = &silentError{}

type silentError struct{}

func (*silentError) Error() string { return "batch failed" }

// consoleObserver prints progress to w and keeps the terminal outcome.
type consoleObserver struct {
	w       io.Writer
	started time.Time

	mu   sync.Mutex
	last batch.Outcome
}

func newConsoleObserver(w io.Writer) *consoleObserver {
	return &consoleObserver{w: w, started: time.Now()}
}

func (c *consoleObserver) Progress(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
}

func (c *consoleObserver) Stats(batch.ProcessingStats) {}

func (c *consoleObserver) Terminal(o batch.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = o
}

func (c *consoleObserver) outcome() batch.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// RunResult is the final report of a batch.
type RunResult struct {
	RunID    string                `json:"run_id"`
	Outcome  string                `json:"outcome"`
	Message  string                `json:"message"`
	Stats    batch.ProcessingStats `json:"stats"`
	Error    string                `json:"error,omitempty"`
	Duration string                `json:"duration"`
}

func newRunResult(o batch.Outcome, elapsed time.Duration) RunResult {
	r := RunResult{
		RunID:    o.RunID,
		Outcome:  string(o.Kind),
		Message:  o.Message(),
		Stats:    o.Stats,
		Duration: elapsed.Round(time.Second).String(),
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

func (r RunResult) TextOutput() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (run %s, %s)\n", r.Message, r.RunID, r.Duration)
	fmt.Fprintf(&b, "  submitted: %s of %s\n", humanize.Comma(int64(r.Stats.Success)), humanize.Comma(int64(r.Stats.Total)))
	fmt.Fprintf(&b, "  failed:    %s\n", humanize.Comma(int64(r.Stats.Failed)))
	fmt.Fprintf(&b, "  skipped:   %s", humanize.Comma(int64(r.Stats.Skipped)))
	if rem := r.Stats.Remaining(); rem > 0 {
		fmt.Fprintf(&b, "\n  not run:   %s", humanize.Comma(int64(rem)))
	}
	return b.String()
}
