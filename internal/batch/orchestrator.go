// internal/batch/orchestrator.go

// Package batch runs a list of coordinates through conversion, accession
// lookup and browser submission on a single worker goroutine.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/locator"
	"github.com/primer-cli/primerbatch/internal/params"
)

var (
	// ErrBusy rejects a start while a batch is active.
	ErrBusy = errors.New("a batch is already active")

	// ErrEmptyBatch means no valid coordinate survived parsing.
	ErrEmptyBatch = errors.New("no valid coordinates to process")

	// ErrSessionLost means the browser died and could not be restarted.
	ErrSessionLost = errors.New("browser session lost and restart failed")

	// ErrNoAccession means a chromosome has no accession in the build.
	ErrNoAccession = errors.New("no accession for chromosome")
)

// Session is the browser surface the orchestrator drives.
type Session interface {
	EnsureAlive(ctx context.Context) bool
	Start(ctx context.Context, kind browser.Kind, retries int) bool
	OpenTargetPage(ctx context.Context, retries int) bool
	ValidateLocators(ctx context.Context) (map[locator.Key]bool, []locator.Key)
	InitializePageOnce(ctx context.Context, p params.Parameters) error
	ApplyParameters(ctx context.Context, p params.Parameters) error
	SubmitOne(ctx context.Context, accession string, pos, extLeft, extRight, retries int) error
}

// Resolver is the coordinate pipeline the orchestrator consumes.
type Resolver interface {
	CanConvert() bool
	ValidateBatch(text string, build coords.Build) (valid, invalid []coords.Record)
	ConvertBuild(chrom string, pos int) coords.Conversion
	ResolveAccession(chrom string, build coords.Build) string
}

// Options holds retry budgets and delays.
type Options struct {
	StartRetries  int
	PageRetries   int
	SubmitRetries int

	// ItemRetries re-runs the whole per-item pipeline; attempt n waits
	// n*ItemDelay before the next one.
	ItemRetries int
	ItemDelay   time.Duration

	InterItemDelay time.Duration
}

// DefaultOptions returns the stock budgets.
func DefaultOptions() Options {
	return Options{
		StartRetries:   2,
		PageRetries:    2,
		SubmitRetries:  3,
		ItemRetries:    3,
		ItemDelay:      5 * time.Second,
		InterItemDelay: 2 * time.Second,
	}
}

// Request describes one batch.
type Request struct {
	Text           string
	Build          coords.Build
	Browser        browser.Kind
	SkipValidation bool
	Parameters     params.Parameters
}

// Orchestrator owns the task state machine. Start and RequestStop may be
// called from any goroutine; all session work happens on the worker.
type Orchestrator struct {
	session  Session
	resolver Resolver
	obs      Observer
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	current params.Current
	stop    atomic.Bool

	mu         sync.Mutex
	state      TaskState
	stats      ProcessingStats
	runID      string
	lastErr    error
	done       chan struct{}
	stopCancel context.CancelFunc
}

// New creates an idle orchestrator. obs may be nil.
func New(session Session, resolver Resolver, obs Observer, opts Options, logger *slog.Logger) *Orchestrator {
	if obs == nil {
		obs = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		session:  session,
		resolver: resolver,
		obs:      obs,
		opts:     opts,
		logger:   logger.With("comp", "batch"),
		sleep:    sleepCtx,
	}
	_ = o.current.Store(params.Defaults())
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current task state.
func (o *Orchestrator) State() TaskState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stats returns the latest published counters.
func (o *Orchestrator) Stats() ProcessingStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// LastError returns the error of the last failed batch, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Parameters returns the parameters the next submission will use.
func (o *Orchestrator) Parameters() params.Parameters {
	return o.current.Load()
}

// UpdateParameters replaces the parameters used from the next submission
// on. Invalid parameters are rejected and the previous set stays.
func (o *Orchestrator) UpdateParameters(p params.Parameters) error {
	return o.current.Store(p)
}

// Start launches a batch on a new worker goroutine and returns its run ID.
// It fails synchronously with ErrBusy while a batch is active, leaving
// state and stats untouched.
func (o *Orchestrator) Start(ctx context.Context, req Request) (string, error) {
	o.mu.Lock()
	if o.state.Active() {
		st := o.state
		o.mu.Unlock()
		return "", fmt.Errorf("%w (state %s)", ErrBusy, st)
	}
	if err := o.current.Store(req.Parameters); err != nil {
		o.mu.Unlock()
		return "", err
	}

	runID := uuid.NewString()
	stopCtx, stopCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.state = Initializing
	o.stats = ProcessingStats{}
	o.lastErr = nil
	o.runID = runID
	o.done = done
	o.stopCancel = stopCancel
	o.stop.Store(false)
	o.mu.Unlock()

	go o.run(ctx, stopCtx, req, runID, done)
	return runID, nil
}

// RequestStop asks the worker to stop at the next item boundary. It returns
// false when no batch is active.
func (o *Orchestrator) RequestStop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Initializing && o.state != Running {
		return false
	}
	o.stop.Store(true)
	o.state = Stopping
	if o.stopCancel != nil {
		o.stopCancel()
	}
	o.logger.Info("stop requested", "run_id", o.runID)
	return true
}

// Wait blocks until the current batch, if any, has finished.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) setState(s TaskState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// enterRunning moves Initializing to Running but leaves Stopping alone.
func (o *Orchestrator) enterRunning() {
	o.mu.Lock()
	if o.state == Initializing {
		o.state = Running
	}
	o.mu.Unlock()
}

func (o *Orchestrator) publish(s ProcessingStats) {
	o.mu.Lock()
	o.stats = s
	o.mu.Unlock()
	o.obs.Stats(s)
}

func (o *Orchestrator) progress(logger *slog.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Info(msg)
	o.obs.Progress(msg)
}

func (o *Orchestrator) finish(runID string, kind OutcomeKind, stats ProcessingStats, err error) {
	o.mu.Lock()
	switch kind {
	case OutcomeCompleted:
		o.state = Completed
	case OutcomeStopped:
		o.state = Idle
	default:
		o.state = Error
		o.lastErr = err
	}
	if o.stopCancel != nil {
		o.stopCancel()
		o.stopCancel = nil
	}
	o.mu.Unlock()

	out := Outcome{Kind: kind, RunID: runID, Stats: stats, Err: err}
	o.logger.Info("batch finished", "run_id", runID, "outcome", kind, "processed", stats.Processed, "success", stats.Success, "failed", stats.Failed, "err", err)
	o.obs.Terminal(out)
}

// records validates or leniently parses the input. Excluded lines count as
// skipped.
func (o *Orchestrator) records(req Request) ([]coords.Record, int) {
	if req.SkipValidation {
		accepted, rejected := coords.ParseLenient(req.Text)
		for _, r := range rejected {
			o.obs.Progress(fmt.Sprintf("line %d skipped: %s", r.LineNumber, r.ErrorMessage()))
		}
		return accepted, len(rejected)
	}
	valid, invalid := o.resolver.ValidateBatch(req.Text, req.Build)
	for _, r := range invalid {
		o.obs.Progress(fmt.Sprintf("line %d skipped: %s", r.LineNumber, r.ErrorMessage()))
	}
	return valid, len(invalid)
}

func (o *Orchestrator) run(ctx, stopCtx context.Context, req Request, runID string, done chan struct{}) {
	defer close(done)
	logger := o.logger.With("run_id", runID)
	var stats ProcessingStats

	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch worker panic", "panic", r)
			o.finish(runID, OutcomeError, stats, fmt.Errorf("internal error: %v", r))
		}
	}()

	records, skipped := o.records(req)
	stats = ProcessingStats{Total: len(records), Skipped: skipped}
	o.publish(stats)
	if len(records) == 0 {
		o.finish(runID, OutcomeError, stats, ErrEmptyBatch)
		return
	}
	if req.Build.NeedsConversion() && !o.resolver.CanConvert() {
		o.finish(runID, OutcomeError, stats, fmt.Errorf("%s input needs conversion: %w", req.Build, coords.ErrConverterUnavailable))
		return
	}

	o.progress(logger, "starting %s browser", req.Browser)
	if !o.session.Start(ctx, req.Browser, o.opts.StartRetries) {
		o.finish(runID, OutcomeError, stats, fmt.Errorf("could not start %s browser", req.Browser))
		return
	}
	if !o.session.OpenTargetPage(ctx, o.opts.PageRetries) {
		o.finish(runID, OutcomeError, stats, errors.New("could not open the primer design page"))
		return
	}
	if _, missing := o.session.ValidateLocators(ctx); len(missing) > 0 {
		o.progress(logger, "warning: %d critical page elements not located (%v); continuing", len(missing), missing)
	}

	o.enterRunning()
	o.progress(logger, "processing %s coordinates", humanize.Comma(int64(len(records))))

	for i, rec := range records {
		if o.stop.Load() || ctx.Err() != nil {
			o.finish(runID, OutcomeStopped, stats, nil)
			return
		}

		if !o.session.EnsureAlive(ctx) {
			o.progress(logger, "browser not responding, restarting")
			if !o.session.Start(ctx, req.Browser, o.opts.StartRetries) || !o.session.OpenTargetPage(ctx, o.opts.PageRetries) {
				o.finish(runID, OutcomeError, stats, ErrSessionLost)
				return
			}
		}

		err := o.processItem(ctx, logger, req.Build, rec)
		stats.Processed++
		if err == nil {
			stats.Success++
		} else {
			stats.Failed++
			o.progress(logger, "[%d/%d] line %d failed: %v", i+1, len(records), rec.LineNumber, err)
		}
		o.publish(stats)

		if i < len(records)-1 {
			_ = o.sleep(stopCtx, o.opts.InterItemDelay)
		}
	}

	if o.stop.Load() {
		o.finish(runID, OutcomeStopped, stats, nil)
		return
	}
	o.finish(runID, OutcomeCompleted, stats, nil)
}

// processItem runs convert, resolve and submit with the outer retry budget.
// Input errors are not retried. A stop request does not cut the attempt
// group short; it is honoured at the next item boundary.
func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, build coords.Build, rec coords.Record) error {
	retries := max(o.opts.ItemRetries, 1)
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = o.attemptItem(ctx, logger, build, rec)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNoAccession) || errors.Is(err, coords.ErrConverterUnavailable) {
			return err
		}
		if attempt == retries {
			break
		}
		wait := time.Duration(attempt) * o.opts.ItemDelay
		logger.Warn("item attempt failed", "line", rec.LineNumber, "attempt", attempt, "retry_in", wait, "err", err)
		if serr := o.sleep(ctx, wait); serr != nil {
			break
		}
	}
	return err
}

func (o *Orchestrator) attemptItem(ctx context.Context, logger *slog.Logger, build coords.Build, rec coords.Record) error {
	chrom, pos := rec.Chromosome, rec.Position
	if build.NeedsConversion() {
		conv := o.resolver.ConvertBuild(chrom, pos)
		if conv.Err != nil {
			return conv.Err
		}
		chrom, pos, build = conv.Chromosome, conv.Position, coords.Current
	}

	acc := o.resolver.ResolveAccession(chrom, build)
	if acc == "" {
		return fmt.Errorf("%w: %s in %s", ErrNoAccession, chrom, build)
	}

	p := o.current.Load()
	if err := o.session.InitializePageOnce(ctx, p); err != nil {
		return err
	}
	if err := o.session.ApplyParameters(ctx, p); err != nil {
		return err
	}
	if err := o.session.SubmitOne(ctx, acc, pos, p.ExtensionLeft, p.ExtensionRight, o.opts.SubmitRetries); err != nil {
		return err
	}
	o.progress(logger, "line %d: %s:%s -> %s submitted", rec.LineNumber, chrom, humanize.Comma(int64(pos)), acc)
	return nil
}
