// internal/batch/orchestrator_test.go
package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/liftover"
	"github.com/primer-cli/primerbatch/internal/locator"
	"github.com/primer-cli/primerbatch/internal/params"
)

type submission struct {
	accession string
	pos       int
}

// fakeSession records calls. Fields are only touched by the worker
// goroutine; tests read them after Wait.
type fakeSession struct {
	startResults []bool
	alive        []bool

	starts      int
	opens       int
	inits       int
	applies     []params.Parameters
	submissions []submission

	submitErrs []error
	// block, when set, is received from before each submission returns.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSession) EnsureAlive(ctx context.Context) bool {
	if len(f.alive) == 0 {
		return true
	}
	v := f.alive[0]
	f.alive = f.alive[1:]
	return v
}

func (f *fakeSession) Start(ctx context.Context, kind browser.Kind, retries int) bool {
	f.starts++
	if len(f.startResults) == 0 {
		return true
	}
	v := f.startResults[0]
	f.startResults = f.startResults[1:]
	return v
}

func (f *fakeSession) OpenTargetPage(ctx context.Context, retries int) bool {
	f.opens++
	return true
}

func (f *fakeSession) ValidateLocators(ctx context.Context) (map[locator.Key]bool, []locator.Key) {
	return map[locator.Key]bool{}, nil
}

func (f *fakeSession) InitializePageOnce(ctx context.Context, p params.Parameters) error {
	f.inits++
	return nil
}

func (f *fakeSession) ApplyParameters(ctx context.Context, p params.Parameters) error {
	f.applies = append(f.applies, p)
	return nil
}

func (f *fakeSession) SubmitOne(ctx context.Context, acc string, pos, l, r, retries int) error {
	f.submissions = append(f.submissions, submission{acc, pos})
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return err
	}
	return nil
}

type recorder struct {
	mu       sync.Mutex
	progress []string
	stats    []ProcessingStats
	outcomes []Outcome
}

func (r *recorder) Progress(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, msg)
}

func (r *recorder) Stats(s ProcessingStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, s)
}

func (r *recorder) Terminal(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) outcome(t *testing.T) Outcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) != 1 {
		t.Fatalf("got %d terminal notifications, want 1", len(r.outcomes))
	}
	return r.outcomes[0]
}

const testChain = `chain 100 chr1 1000000 + 0 1000 chr1 1000000 + 5000 6000 1
1000

chain 100 chrX 1000000 + 0 1000 chrX 1000000 + 200 1200 2
1000
`

func testResolver(t *testing.T) *coords.Resolver {
	t.Helper()
	chain, err := liftover.Parse(strings.NewReader(testChain))
	if err != nil {
		t.Fatal(err)
	}
	return coords.NewResolver(chain, nil, nil)
}

func newTestOrchestrator(t *testing.T, s Session, r Resolver) (*Orchestrator, *recorder, *[]time.Duration) {
	t.Helper()
	rec := &recorder{}
	o := New(s, r, rec, DefaultOptions(), nil)
	var mu sync.Mutex
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	return o, rec, &slept
}

func legacyRequest(text string) Request {
	return Request{Text: text, Build: coords.Legacy, Browser: browser.Edge, Parameters: params.Defaults()}
}

func TestEndToEndLegacyBatch(t *testing.T) {
	fs := &fakeSession{}
	o, rec, slept := newTestOrchestrator(t, fs, testResolver(t))

	runID, err := o.Start(context.Background(), legacyRequest("chr1 100\nfoo 200\nX 300"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runID == "" {
		t.Error("empty run ID")
	}
	o.Wait()

	out := rec.outcome(t)
	if out.Kind != OutcomeCompleted || out.RunID != runID {
		t.Fatalf("outcome = %+v", out)
	}
	want := ProcessingStats{Total: 2, Processed: 2, Success: 2, Skipped: 1}
	if got := o.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
	if o.State() != Completed {
		t.Errorf("State() = %v, want completed", o.State())
	}

	wantSubs := []submission{{"NC_000001.11", 5100}, {"NC_000023.11", 500}}
	if len(fs.submissions) != 2 || fs.submissions[0] != wantSubs[0] || fs.submissions[1] != wantSubs[1] {
		t.Errorf("submissions = %v, want %v", fs.submissions, wantSubs)
	}
	if len(fs.applies) != 2 || fs.inits != 2 {
		t.Errorf("applies = %d, inits = %d; want parameters applied per item", len(fs.applies), fs.inits)
	}
	if len(*slept) != 1 || (*slept)[0] != DefaultOptions().InterItemDelay {
		t.Errorf("slept = %v, want one inter-item delay", *slept)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	foundSkip := false
	for _, p := range rec.progress {
		if strings.Contains(p, "line 2 skipped") {
			foundSkip = true
		}
	}
	if !foundSkip {
		t.Errorf("no progress for skipped line 2: %v", rec.progress)
	}
	for i := 1; i < len(rec.stats); i++ {
		if rec.stats[i].Processed < rec.stats[i-1].Processed {
			t.Errorf("stats went backwards: %+v -> %+v", rec.stats[i-1], rec.stats[i])
		}
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	fs := &fakeSession{block: make(chan struct{}), entered: make(chan struct{}, 4)}
	o, _, _ := newTestOrchestrator(t, fs, testResolver(t))

	if _, err := o.Start(context.Background(), legacyRequest("chr1 100\nchr1 200")); err != nil {
		t.Fatal(err)
	}
	<-fs.entered
	if o.State() != Running {
		t.Fatalf("State() = %v, want running", o.State())
	}

	before := o.Stats()
	_, err := o.Start(context.Background(), legacyRequest("chr1 300"))
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() error = %v, want ErrBusy", err)
	}
	if o.State() != Running || o.Stats() != before {
		t.Errorf("rejected start mutated state %v or stats %+v", o.State(), o.Stats())
	}

	close(fs.block)
	o.Wait()
	if o.State() != Completed {
		t.Errorf("State() = %v after run", o.State())
	}
}

func TestStopTransitionsToIdle(t *testing.T) {
	fs := &fakeSession{block: make(chan struct{}), entered: make(chan struct{}, 4)}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))

	if _, err := o.Start(context.Background(), legacyRequest("chr1 100\nchr1 200\nchr1 300")); err != nil {
		t.Fatal(err)
	}
	<-fs.entered
	if !o.RequestStop() {
		t.Fatal("RequestStop() = false during run")
	}
	if o.State() != Stopping {
		t.Errorf("State() = %v, want stopping", o.State())
	}
	close(fs.block)
	o.Wait()

	out := rec.outcome(t)
	if out.Kind != OutcomeStopped || out.Err != nil {
		t.Errorf("outcome = %+v, want stopped", out)
	}
	if o.State() != Idle {
		t.Errorf("State() = %v, want idle", o.State())
	}
	if s := o.Stats(); s.Processed != 1 || s.Total != 3 {
		t.Errorf("Stats() = %+v, want 1 of 3 processed", s)
	}
	if o.RequestStop() {
		t.Error("RequestStop() = true while idle")
	}
}

func TestRestartFailureEndsInError(t *testing.T) {
	fs := &fakeSession{alive: []bool{false}, startResults: []bool{true, false}}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))

	if _, err := o.Start(context.Background(), legacyRequest("chr1 100")); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	out := rec.outcome(t)
	if out.Kind != OutcomeError || !errors.Is(out.Err, ErrSessionLost) {
		t.Errorf("outcome = %+v, want ErrSessionLost", out)
	}
	if o.State() != Error || !errors.Is(o.LastError(), ErrSessionLost) {
		t.Errorf("State() = %v, LastError() = %v", o.State(), o.LastError())
	}
	if len(fs.submissions) != 0 {
		t.Errorf("submitted %v after lost session", fs.submissions)
	}
}

func TestRestartRecovers(t *testing.T) {
	fs := &fakeSession{alive: []bool{false}}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))

	o.Start(context.Background(), legacyRequest("chr1 100"))
	o.Wait()
	if out := rec.outcome(t); out.Kind != OutcomeCompleted {
		t.Errorf("outcome = %+v", out)
	}
	if fs.starts != 2 || fs.opens != 2 {
		t.Errorf("starts = %d, opens = %d; want one restart", fs.starts, fs.opens)
	}
}

func TestOuterRetryLinearBackoff(t *testing.T) {
	transient := errors.New("results tab did not open")
	fs := &fakeSession{submitErrs: []error{transient, transient}}
	o, _, slept := newTestOrchestrator(t, fs, testResolver(t))

	o.Start(context.Background(), legacyRequest("chr1 100"))
	o.Wait()

	if s := o.Stats(); s.Success != 1 || s.Failed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
	if len(fs.submissions) != 3 || len(fs.applies) != 3 {
		t.Errorf("submissions = %d, applies = %d; want whole pipeline re-run 3 times", len(fs.submissions), len(fs.applies))
	}
	d := DefaultOptions().ItemDelay
	if len(*slept) != 2 || (*slept)[0] != d || (*slept)[1] != 2*d {
		t.Errorf("slept = %v, want [%v %v]", *slept, d, 2*d)
	}
}

func TestItemFailureIsCountedNotFatal(t *testing.T) {
	bad := errors.New("element not found")
	fs := &fakeSession{submitErrs: []error{bad, bad, bad}}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))

	o.Start(context.Background(), legacyRequest("chr1 100\nchr1 5000\nx 10"))
	o.Wait()

	if out := rec.outcome(t); out.Kind != OutcomeCompleted {
		t.Fatalf("outcome = %+v", out)
	}
	// chr1:5000 has no mapping in the test chain; each of its attempts fails
	// before reaching the browser.
	want := ProcessingStats{Total: 3, Processed: 3, Success: 1, Failed: 2}
	if got := o.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestMissingConverterAbortsBeforeBrowser(t *testing.T) {
	fs := &fakeSession{}
	o, rec, _ := newTestOrchestrator(t, fs, coords.NewResolver(nil, nil, nil))

	o.Start(context.Background(), legacyRequest("chr1 100"))
	o.Wait()

	out := rec.outcome(t)
	if out.Kind != OutcomeError || !errors.Is(out.Err, coords.ErrConverterUnavailable) {
		t.Errorf("outcome = %+v", out)
	}
	if fs.starts != 0 {
		t.Errorf("browser started %d times", fs.starts)
	}
}

func TestCurrentBuildSkipsConversion(t *testing.T) {
	fs := &fakeSession{}
	o, _, _ := newTestOrchestrator(t, fs, coords.NewResolver(nil, nil, nil))

	req := legacyRequest("chr7 12345")
	req.Build = coords.Current
	o.Start(context.Background(), req)
	o.Wait()

	if len(fs.submissions) != 1 || fs.submissions[0] != (submission{"NC_000007.14", 12345}) {
		t.Errorf("submissions = %v", fs.submissions)
	}
}

func TestEmptyBatchIsError(t *testing.T) {
	fs := &fakeSession{}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))

	o.Start(context.Background(), legacyRequest("foo\n\nbar 1\n"))
	o.Wait()

	out := rec.outcome(t)
	if !errors.Is(out.Err, ErrEmptyBatch) || o.State() != Error {
		t.Errorf("outcome = %+v, state = %v", out, o.State())
	}
	if out.Stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", out.Stats.Skipped)
	}
	if fs.starts != 0 {
		t.Error("browser started for empty batch")
	}
}

func TestSkipValidationUnknownChromosomeNotRetried(t *testing.T) {
	fs := &fakeSession{}
	o, _, slept := newTestOrchestrator(t, fs, testResolver(t))

	req := legacyRequest("chrM 100")
	req.Build = coords.Current
	req.SkipValidation = true
	o.Start(context.Background(), req)
	o.Wait()

	if s := o.Stats(); s.Failed != 1 || s.Total != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if len(*slept) != 0 || len(fs.submissions) != 0 {
		t.Errorf("retried input error: slept %v, submissions %v", *slept, fs.submissions)
	}
}

func TestSkipValidationReportsRejectedLines(t *testing.T) {
	o, rec, _ := newTestOrchestrator(t, &fakeSession{}, testResolver(t))

	req := legacyRequest("chr1 100\nbad\nchr2 -5")
	req.SkipValidation = true
	o.Start(context.Background(), req)
	o.Wait()

	if s := o.Stats(); s.Skipped != 2 || s.Total != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, want := range []string{"line 2 skipped", "line 3 skipped"} {
		found := false
		for _, p := range rec.progress {
			if strings.HasPrefix(p, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("no %q progress in %q", want, rec.progress)
		}
	}
}

func TestStopWaitsForAttemptGroup(t *testing.T) {
	transient := errors.New("results tab did not open")
	fs := &fakeSession{
		submitErrs: []error{transient, transient, transient},
		block:      make(chan struct{}),
		entered:    make(chan struct{}, 4),
	}
	o, rec, _ := newTestOrchestrator(t, fs, testResolver(t))
	var mu sync.Mutex
	var slept []time.Duration
	// Honour cancellation like the real sleep does.
	o.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}

	if _, err := o.Start(context.Background(), legacyRequest("chr1 100\nchr1 200")); err != nil {
		t.Fatal(err)
	}
	<-fs.entered
	if !o.RequestStop() {
		t.Fatal("RequestStop() = false during run")
	}
	close(fs.block)
	o.Wait()

	if out := rec.outcome(t); out.Kind != OutcomeStopped {
		t.Fatalf("outcome = %+v, want stopped", out)
	}
	retries := DefaultOptions().ItemRetries
	if len(fs.submissions) != retries {
		t.Errorf("submissions = %d, want all %d attempts of the first item", len(fs.submissions), retries)
	}
	for _, sub := range fs.submissions {
		if sub.pos != 5100 {
			t.Errorf("submitted %+v, second item must not start", sub)
		}
	}
	want := ProcessingStats{Total: 2, Processed: 1, Failed: 1}
	if got := o.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
	d := DefaultOptions().ItemDelay
	mu.Lock()
	defer mu.Unlock()
	if len(slept) < 2 || slept[0] != d || slept[1] != 2*d {
		t.Errorf("slept = %v, want outer backoff [%v %v] first", slept, d, 2*d)
	}
}

func TestStartRejectsInvalidParameters(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeSession{}, testResolver(t))
	req := legacyRequest("chr1 100")
	req.Parameters.PCRMax = req.Parameters.PCRMin

	var ve *params.ValidationError
	if _, err := o.Start(context.Background(), req); !errors.As(err, &ve) {
		t.Fatalf("Start() error = %v, want ValidationError", err)
	}
	if o.State() != Idle {
		t.Errorf("State() = %v, want idle", o.State())
	}
}

func TestUpdateParametersMidBatch(t *testing.T) {
	fs := &fakeSession{block: make(chan struct{}), entered: make(chan struct{}, 4)}
	o, _, _ := newTestOrchestrator(t, fs, testResolver(t))

	o.Start(context.Background(), legacyRequest("chr1 100\nchr1 200"))
	<-fs.entered

	next := params.Defaults()
	next.PCRMax = 2500
	if err := o.UpdateParameters(next); err != nil {
		t.Fatal(err)
	}
	fs.block <- struct{}{}
	<-fs.entered
	fs.block <- struct{}{}
	o.Wait()

	if len(fs.applies) != 2 || fs.applies[0].PCRMax != 1200 || fs.applies[1].PCRMax != 2500 {
		t.Errorf("applied PCRMax values: %v", fs.applies)
	}
}

func TestStatsHelpers(t *testing.T) {
	s := ProcessingStats{Total: 8, Processed: 3}
	if s.Remaining() != 5 || s.Percent() != 37 {
		t.Errorf("Remaining() = %d, Percent() = %d", s.Remaining(), s.Percent())
	}
	if (ProcessingStats{}).Percent() != 0 {
		t.Error("Percent() of empty batch not 0")
	}
}
