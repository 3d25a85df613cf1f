// internal/browser/session.go

// Package browser owns the browser process and the sequence of form
// operations for one primer-design submission.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"

	"github.com/primer-cli/primerbatch/internal/locator"
	"github.com/primer-cli/primerbatch/internal/params"
)

// TargetURL is the primer-design tool driven by the session.
const TargetURL = "https://www.ncbi.nlm.nih.gov/tools/primer-blast/"

// Fixed one-time form selections.
const (
	DatabaseValue = "PRIMERDB/genome_selected_species"
	OrganismValue = "Homo sapiens"
)

// State is the session lifecycle state.
type State int

const (
	NoSession State = iota
	Starting
	Ready
	PageUninitialized
	PageReady
	Submitting
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case PageUninitialized:
		return "page_uninitialized"
	case PageReady:
		return "page_ready"
	case Submitting:
		return "submitting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options holds timing and launch settings.
type Options struct {
	Launch LaunchOptions

	PageLoadTimeout time.Duration
	ElementTimeout  time.Duration
	ProbeTimeout    time.Duration
	NewTabTimeout   time.Duration
	PingTimeout     time.Duration

	StartBackoff time.Duration
	PageBackoff  time.Duration
	// RetryDelay is the base delay of SubmitOne's linear backoff.
	RetryDelay time.Duration
	// SettleDelay is the pause after opening the advanced options panel.
	SettleDelay time.Duration
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		Launch:          LaunchOptions{Kind: Edge, WindowWidth: 1400, WindowHeight: 900},
		PageLoadTimeout: 30 * time.Second,
		ElementTimeout:  20 * time.Second,
		ProbeTimeout:    5 * time.Second,
		NewTabTimeout:   15 * time.Second,
		PingTimeout:     5 * time.Second,
		StartBackoff:    2 * time.Second,
		PageBackoff:     2 * time.Second,
		RetryDelay:      5 * time.Second,
		SettleDelay:     time.Second,
	}
}

const newTabPoll = 250 * time.Millisecond

// Session is the single browser session of the process. Its operations must
// be called from one goroutine (the batch worker); State may be read from
// anywhere.
type Session struct {
	drv    Driver
	loc    *locator.Locator
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu              sync.Mutex
	state           State
	kind            Kind
	pageInitialized bool
}

// NewSession wires a session to drv. loc may be nil, in which case a
// locator with the default strategy table is built over drv.
func NewSession(drv Driver, loc *locator.Locator, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = locator.New(drv, nil, logger)
	}
	return &Session{
		drv:    drv,
		loc:    loc,
		opts:   opts,
		logger: logger.With("comp", "browser"),
		sleep:  sleepCtx,
	}
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

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Kind returns the engine of the running browser, or "" with no session.
func (s *Session) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// PageInitialized reports whether one-time page setup has run on the
// current page load.
func (s *Session) PageInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageInitialized
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	if st == NoSession {
		s.kind = ""
		s.pageInitialized = false
	}
	s.mu.Unlock()
}

// EnsureAlive pings the browser. On failure local state is reset so a later
// Start is clean.
func (s *Session) EnsureAlive(ctx context.Context) bool {
	if s.State() == NoSession {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
	defer cancel()
	if err := s.drv.Ping(pctx); err != nil {
		s.logger.Warn("browser not responding", "err", err)
		_ = s.drv.Close()
		s.setState(NoSession)
		return false
	}
	return true
}

// Start launches a browser of the given kind. A live browser of the same
// kind is kept; a different kind is closed first. Failures never escape as
// panics; false leaves the session in NoSession.
func (s *Session) Start(ctx context.Context, kind Kind, retries int) bool {
	if s.EnsureAlive(ctx) {
		if s.Kind() == kind {
			s.logger.Info("browser already running", "kind", kind)
			return true
		}
		s.logger.Info("switching browser", "from", s.Kind(), "to", kind)
		s.Close()
	}
	if retries < 1 {
		retries = 1
	}

	s.setState(Starting)
	launch := s.opts.Launch
	launch.Kind = kind
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.opts.StartBackoff); err != nil {
				break
			}
			s.logger.Info("retrying browser start", "attempt", attempt, "kind", kind)
		}
		lctx, cancel := context.WithTimeout(ctx, s.opts.PageLoadTimeout)
		err := s.drv.Launch(lctx, launch)
		cancel()
		if err == nil {
			s.mu.Lock()
			s.state, s.kind, s.pageInitialized = Ready, kind, false
			s.mu.Unlock()
			return true
		}
		s.logger.Error("browser start failed", "attempt", attempt, "kind", kind, "err", err)
		_ = s.drv.Close()
	}

	s.setState(NoSession)
	s.logger.Error("browser start gave up", "kind", kind, "attempts", retries)
	return false
}

// loadPage navigates to the target URL and waits for the document body. A
// navigation that lands on a data: placeholder is reloaded.
func (s *Session) loadPage(ctx context.Context) error {
	nctx, cancel := context.WithTimeout(ctx, s.opts.PageLoadTimeout)
	defer cancel()

	if err := s.drv.Navigate(nctx, TargetURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if loc, err := s.drv.Location(nctx); err == nil && strings.HasPrefix(loc, "data:") {
		s.logger.Debug("placeholder url after navigation, reloading", "url", loc)
		if err := s.drv.Reload(nctx); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	if err := s.drv.WaitReady(nctx); err != nil {
		return fmt.Errorf("wait for page: %w", err)
	}
	return nil
}

// OpenTargetPage loads the target URL, retrying transient failures. A fresh
// load always requires one-time setup again.
func (s *Session) OpenTargetPage(ctx context.Context, retries int) bool {
	if s.State() == NoSession {
		s.logger.Error("open page without browser")
		return false
	}
	if retries < 1 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.opts.PageBackoff); err != nil {
				break
			}
		}
		if err := s.loadPage(ctx); err != nil {
			s.logger.Error("open page failed", "attempt", attempt, "err", err)
			continue
		}
		s.mu.Lock()
		s.state, s.pageInitialized = PageUninitialized, false
		s.mu.Unlock()
		s.logger.Info("target page open", "url", TargetURL)
		return true
	}
	return false
}

func (s *Session) find(ctx context.Context, key locator.Key, clickable bool) (*cdp.Node, error) {
	n := s.loc.Find(ctx, key, s.opts.ElementTimeout, clickable)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, key)
	}
	return n, nil
}

func (s *Session) fill(ctx context.Context, key locator.Key, value string) error {
	n, err := s.find(ctx, key, false)
	if err != nil {
		return err
	}
	if err := s.drv.Fill(ctx, n, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (s *Session) click(ctx context.Context, key locator.Key) error {
	n, err := s.find(ctx, key, true)
	if err != nil {
		return err
	}
	if err := s.drv.Click(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// clickOptional clicks key if it can be found quickly and only warns
// otherwise.
func (s *Session) clickOptional(ctx context.Context, key locator.Key) {
	n := s.loc.Find(ctx, key, s.opts.ProbeTimeout, true)
	if n == nil {
		s.logger.Warn("optional element missing", "key", key)
		return
	}
	if err := s.drv.Click(ctx, n); err != nil {
		s.logger.Warn("optional element click failed", "key", key, "err", err)
	}
}

// InitializePageOnce performs the one-time setup of a freshly loaded page:
// single-target mode, advanced options, database, organism and fixed
// toggles. It is a no-op once done for the current page load.
func (s *Session) InitializePageOnce(ctx context.Context, p params.Parameters) error {
	if s.PageInitialized() {
		return nil
	}
	if s.State() == NoSession {
		return ErrNoSession
	}

	if loc, err := s.drv.Location(ctx); err != nil || !strings.Contains(strings.ToLower(loc), "primer-blast") {
		s.logger.Info("not on target page, loading", "url", loc)
		if err := s.loadPage(ctx); err != nil {
			return fmt.Errorf("page initialization: %w", err)
		}
	}

	if err := s.click(ctx, locator.OneTargetTab); err != nil {
		return fmt.Errorf("page initialization: %w", err)
	}
	if err := s.click(ctx, locator.AdvancedButton); err != nil {
		return fmt.Errorf("page initialization: %w", err)
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}

	db, err := s.find(ctx, locator.Database, false)
	if err != nil {
		return fmt.Errorf("page initialization: %w", err)
	}
	if err := s.drv.SelectValue(ctx, db, DatabaseValue); err != nil {
		return fmt.Errorf("page initialization: database: %w", err)
	}
	if err := s.fill(ctx, locator.Organism, OrganismValue); err != nil {
		return fmt.Errorf("page initialization: %w", err)
	}
	s.clickOptional(ctx, locator.NoSNPOption)
	s.clickOptional(ctx, locator.NewWindowOption)

	s.mu.Lock()
	s.pageInitialized, s.state = true, PageReady
	s.mu.Unlock()
	s.logger.Info("target page initialized", "pcr_min", p.PCRMin, "pcr_max", p.PCRMax)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ApplyParameters pushes every mutable numeric field into its form control.
// It runs before each submission so edits between items take effect.
func (s *Session) ApplyParameters(ctx context.Context, p params.Parameters) error {
	if s.State() == NoSession {
		return ErrNoSession
	}
	fields := []struct {
		key   locator.Key
		value string
	}{
		{locator.PCRMin, strconv.Itoa(p.PCRMin)},
		{locator.PCRMax, strconv.Itoa(p.PCRMax)},
		{locator.TmMin, formatFloat(p.TmMin)},
		{locator.TmOpt, formatFloat(p.TmOpt)},
		{locator.TmMax, formatFloat(p.TmMax)},
		{locator.TmMaxDiff, formatFloat(p.TmMaxDiff)},
		{locator.PrimerMinSize, strconv.Itoa(p.PrimerMinSize)},
		{locator.PrimerOptSize, strconv.Itoa(p.PrimerOptSize)},
		{locator.PrimerMaxSize, strconv.Itoa(p.PrimerMaxSize)},
		{locator.NumReturn, strconv.Itoa(p.NumReturn)},
		{locator.PolyX, strconv.Itoa(p.MaxPolyX)},
		{locator.EndGCMax, strconv.Itoa(p.EndGCMax)},
	}
	for _, f := range fields {
		if err := s.fill(ctx, f.key, f.value); err != nil {
			return fmt.Errorf("apply parameters: %w", err)
		}
	}
	s.logger.Debug("parameters applied")
	return nil
}

// Window is a primer search range on the reference sequence.
type Window struct {
	Start, End int
}

// SearchWindows computes the forward and reverse primer ranges around pos.
// All bounds are clamped to at least 1.
func SearchWindows(pos, extLeft, extRight int) (left, right Window) {
	left = Window{Start: max(1, pos-extLeft), End: max(1, pos-20)}
	right = Window{Start: max(1, pos+20), End: max(1, pos+extRight)}
	return left, right
}

// SubmitOne fills accession and primer ranges, submits, waits for the
// results tab and returns focus to the form. The whole sequence is retried
// up to retries times with linearly increasing delays. Exhaustion returns
// an error describing the last failure.
func (s *Session) SubmitOne(ctx context.Context, accession string, pos, extLeft, extRight, retries int) error {
	if s.State() == NoSession {
		return ErrNoSession
	}
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		lastErr = s.submitAttempt(ctx, accession, pos, extLeft, extRight)
		if lastErr == nil {
			s.setState(PageReady)
			s.logger.Info("submitted", "accession", accession, "pos", pos, "attempt", attempt)
			return nil
		}
		s.setState(PageReady)
		if attempt == retries {
			break
		}
		wait := time.Duration(attempt) * s.opts.RetryDelay
		s.logger.Warn("submission attempt failed", "attempt", attempt, "retry_in", wait, "err", lastErr)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	s.logger.Error("submission failed", "accession", accession, "pos", pos, "attempts", retries, "err", lastErr)
	return fmt.Errorf("submission failed after %d attempts: %w", retries, lastErr)
}

func (s *Session) submitAttempt(ctx context.Context, accession string, pos, extLeft, extRight int) error {
	s.setState(Submitting)

	if err := s.fill(ctx, locator.SeqInput, accession); err != nil {
		return err
	}
	left, right := SearchWindows(pos, extLeft, extRight)
	for _, f := range []struct {
		key locator.Key
		v   int
	}{
		{locator.Primer5Start, left.Start},
		{locator.Primer5End, left.End},
		{locator.Primer3Start, right.Start},
		{locator.Primer3End, right.End},
	} {
		if err := s.fill(ctx, f.key, strconv.Itoa(f.v)); err != nil {
			return err
		}
	}

	before, err := s.drv.PageCount(ctx)
	if err != nil {
		return fmt.Errorf("count tabs: %w", err)
	}
	if err := s.click(ctx, locator.SubmitButton); err != nil {
		return err
	}
	if err := s.waitNewPage(ctx, before); err != nil {
		return err
	}
	if err := s.drv.Activate(ctx); err != nil {
		s.logger.Warn("could not return to form tab", "err", err)
	}
	return nil
}

func (s *Session) waitNewPage(ctx context.Context, before int) error {
	wctx, cancel := context.WithTimeout(ctx, s.opts.NewTabTimeout)
	defer cancel()
	for {
		if n, err := s.drv.PageCount(wctx); err == nil && n > before {
			return nil
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNewTabTimeout
		case <-time.After(newTabPoll):
		}
	}
}

// ValidateLocators probes every element key and returns the results along
// with the critical keys that are missing. It never fails the caller.
func (s *Session) ValidateLocators(ctx context.Context) (map[locator.Key]bool, []locator.Key) {
	results := s.loc.ValidateAll(ctx, s.opts.ProbeTimeout)
	missing := locator.MissingCritical(results)
	for _, k := range missing {
		s.logger.Warn("critical element not located; page may have changed", "key", k)
	}
	return results, missing
}

// Close shuts the browser down and resets all session state.
func (s *Session) Close() {
	if s.State() == NoSession {
		return
	}
	if err := s.drv.Close(); err != nil {
		s.logger.Warn("browser close", "err", err)
	}
	s.setState(NoSession)
	s.logger.Info("browser closed")
}
