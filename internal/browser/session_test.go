// internal/browser/session_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"

	"github.com/primer-cli/primerbatch/internal/locator"
	"github.com/primer-cli/primerbatch/internal/params"
)

type fill struct{ field, value string }

// fakeDriver resolves every strategy to a node named after its value unless
// miss says otherwise. Clicking the submit button opens a tab.
type fakeDriver struct {
	miss func(locator.Strategy) bool

	launchErrs []error
	launches   []LaunchOptions
	pingErr    error
	closed     int

	location  string
	navigates int
	reloads   int

	fills   []fill
	clicks  []string
	selects []fill

	pages          int
	submitFailures int
	submitNoTab    bool
	activated      int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{location: TargetURL, pages: 1}
}

func (f *fakeDriver) Query(ctx context.Context, s locator.Strategy, clickable bool) (*cdp.Node, error) {
	if f.miss != nil && f.miss(s) {
		return nil, fmt.Errorf("no match for %s", s.Value)
	}
	return &cdp.Node{NodeName: s.Value}, nil
}

func (f *fakeDriver) Launch(ctx context.Context, o LaunchOptions) error {
	f.launches = append(f.launches, o)
	if len(f.launchErrs) > 0 {
		err := f.launchErrs[0]
		f.launchErrs = f.launchErrs[1:]
		return err
	}
	return nil
}

func (f *fakeDriver) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.navigates++
	return nil
}

func (f *fakeDriver) Location(ctx context.Context) (string, error) { return f.location, nil }

func (f *fakeDriver) Reload(ctx context.Context) error {
	f.reloads++
	f.location = TargetURL
	return nil
}

func (f *fakeDriver) WaitReady(ctx context.Context) error { return nil }

func (f *fakeDriver) Fill(ctx context.Context, n *cdp.Node, v string) error {
	f.fills = append(f.fills, fill{n.NodeName, v})
	return nil
}

func (f *fakeDriver) Click(ctx context.Context, n *cdp.Node) error {
	f.clicks = append(f.clicks, n.NodeName)
	if n.NodeName == "input.blastbutton.prbutton" {
		if f.submitFailures > 0 {
			f.submitFailures--
			return errors.New("stale element")
		}
		if !f.submitNoTab {
			f.pages++
		}
	}
	return nil
}

func (f *fakeDriver) SelectValue(ctx context.Context, n *cdp.Node, v string) error {
	f.selects = append(f.selects, fill{n.NodeName, v})
	return nil
}

func (f *fakeDriver) PageCount(ctx context.Context) (int, error) { return f.pages, nil }

func (f *fakeDriver) Activate(ctx context.Context) error {
	f.activated++
	return nil
}

func (f *fakeDriver) Close() error {
	f.closed++
	return nil
}

func (f *fakeDriver) filled(field string) []string {
	var out []string
	for _, x := range f.fills {
		if x.field == field {
			out = append(out, x.value)
		}
	}
	return out
}

func testOptions() Options {
	o := DefaultOptions()
	o.ElementTimeout = 5 * time.Millisecond
	o.ProbeTimeout = 5 * time.Millisecond
	o.NewTabTimeout = 20 * time.Millisecond
	return o
}

// newTestSession returns a session with a recorded, non-blocking sleep.
func newTestSession(t *testing.T, drv *fakeDriver) (*Session, *[]time.Duration) {
	t.Helper()
	s := NewSession(drv, nil, testOptions(), nil)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func readySession(t *testing.T, drv *fakeDriver) (*Session, *[]time.Duration) {
	t.Helper()
	s, slept := newTestSession(t, drv)
	ctx := context.Background()
	if !s.Start(ctx, Edge, 1) {
		t.Fatal("Start failed")
	}
	if !s.OpenTargetPage(ctx, 1) {
		t.Fatal("OpenTargetPage failed")
	}
	if err := s.InitializePageOnce(ctx, params.Defaults()); err != nil {
		t.Fatalf("InitializePageOnce: %v", err)
	}
	*slept = nil
	return s, slept
}

func TestSubmitOneRetriesWithIncreasingDelay(t *testing.T) {
	drv := newFakeDriver()
	s, slept := readySession(t, drv)
	drv.submitFailures = 2

	if err := s.SubmitOne(context.Background(), "NC_000001.11", 5000, 800, 800, 3); err != nil {
		t.Fatalf("SubmitOne() error = %v", err)
	}
	if got := len(drv.filled("seq")); got != 3 {
		t.Errorf("fill/submit sequence ran %d times, want 3", got)
	}
	if len(*slept) != 2 {
		t.Fatalf("slept %v, want two delays", *slept)
	}
	if (*slept)[1] <= (*slept)[0] {
		t.Errorf("delays %v not increasing", *slept)
	}
	if (*slept)[0] != s.opts.RetryDelay || (*slept)[1] != 2*s.opts.RetryDelay {
		t.Errorf("delays %v, want linear multiples of %v", *slept, s.opts.RetryDelay)
	}
	if s.State() != PageReady {
		t.Errorf("State() = %v, want page_ready", s.State())
	}
	if drv.activated != 1 {
		t.Errorf("Activate called %d times, want 1", drv.activated)
	}
}

func TestSubmitOneExhaustionReturnsError(t *testing.T) {
	drv := newFakeDriver()
	s, slept := readySession(t, drv)
	drv.miss = func(st locator.Strategy) bool {
		return strings.Contains(st.Value, "prbutton") || strings.Contains(st.Value, "Get Primers")
	}

	err := s.SubmitOne(context.Background(), "NC_000001.11", 5000, 800, 800, 2)
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("SubmitOne() error = %v, want ErrElementNotFound", err)
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("error %q does not describe attempts", err)
	}
	if len(*slept) != 1 {
		t.Errorf("slept %v, want one delay between two attempts", *slept)
	}
}

func TestSubmitOneNewTabTimeout(t *testing.T) {
	drv := newFakeDriver()
	s, _ := readySession(t, drv)
	drv.submitNoTab = true

	err := s.SubmitOne(context.Background(), "NC_000001.11", 5000, 800, 800, 1)
	if !errors.Is(err, ErrNewTabTimeout) {
		t.Errorf("SubmitOne() error = %v, want ErrNewTabTimeout", err)
	}
}

func TestSubmitOneWithoutSession(t *testing.T) {
	s, _ := newTestSession(t, newFakeDriver())
	if err := s.SubmitOne(context.Background(), "x", 1, 1, 1, 3); !errors.Is(err, ErrNoSession) {
		t.Errorf("SubmitOne() error = %v, want ErrNoSession", err)
	}
}

func TestSubmitOneFillsSearchWindows(t *testing.T) {
	drv := newFakeDriver()
	s, _ := readySession(t, drv)

	if err := s.SubmitOne(context.Background(), "NC_000023.11", 100, 800, 500, 1); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"seq":           "NC_000023.11",
		"PRIMER5_START": "1",
		"PRIMER5_END":   "80",
		"PRIMER3_START": "120",
		"PRIMER3_END":   "600",
	}
	for field, v := range want {
		got := drv.filled(field)
		if len(got) != 1 || got[0] != v {
			t.Errorf("%s filled with %v, want [%s]", field, got, v)
		}
	}
}

func TestSearchWindows(t *testing.T) {
	tests := []struct {
		pos, l, r   int
		left, right Window
	}{
		{5000, 800, 800, Window{4200, 4980}, Window{5020, 5800}},
		{100, 800, 800, Window{1, 80}, Window{120, 900}},
		{10, 800, 800, Window{1, 1}, Window{30, 810}},
		{1000, 0, 0, Window{1000, 980}, Window{1020, 1000}},
	}
	for _, tt := range tests {
		left, right := SearchWindows(tt.pos, tt.l, tt.r)
		if left != tt.left || right != tt.right {
			t.Errorf("SearchWindows(%d, %d, %d) = %v %v, want %v %v", tt.pos, tt.l, tt.r, left, right, tt.left, tt.right)
		}
	}
}

func TestInitializePageOnceRunsOnce(t *testing.T) {
	drv := newFakeDriver()
	s, _ := readySession(t, drv)
	clicks := len(drv.clicks)

	if err := s.InitializePageOnce(context.Background(), params.Defaults()); err != nil {
		t.Fatal(err)
	}
	if len(drv.clicks) != clicks {
		t.Errorf("second InitializePageOnce clicked %v", drv.clicks[clicks:])
	}
	if len(drv.selects) != 1 || drv.selects[0].value != DatabaseValue {
		t.Errorf("selects = %v", drv.selects)
	}
	if got := drv.filled("ORGANISM"); len(got) != 1 || got[0] != OrganismValue {
		t.Errorf("organism filled with %v", got)
	}

	if !s.OpenTargetPage(context.Background(), 1) {
		t.Fatal("reopen failed")
	}
	if s.PageInitialized() {
		t.Fatal("page still initialized after reload")
	}
	if err := s.InitializePageOnce(context.Background(), params.Defaults()); err != nil {
		t.Fatal(err)
	}
	if len(drv.selects) != 2 {
		t.Errorf("setup did not rerun after page reload")
	}
}

func TestInitializePageMissingOptionalToggles(t *testing.T) {
	drv := newFakeDriver()
	drv.miss = func(st locator.Strategy) bool {
		return strings.Contains(st.Value, "NO_SNP") || strings.Contains(st.Value, "nw2")
	}
	s, _ := newTestSession(t, drv)
	s.Start(context.Background(), Chrome, 1)
	s.OpenTargetPage(context.Background(), 1)
	if err := s.InitializePageOnce(context.Background(), params.Defaults()); err != nil {
		t.Fatalf("missing optional toggles failed setup: %v", err)
	}
	if s.State() != PageReady {
		t.Errorf("State() = %v", s.State())
	}
}

func TestInitializePageMissingTabFails(t *testing.T) {
	drv := newFakeDriver()
	drv.miss = func(st locator.Strategy) bool {
		return strings.Contains(st.Value, "OneTargTab") || st.Value == "Pick primer"
	}
	s, _ := newTestSession(t, drv)
	s.Start(context.Background(), Chrome, 1)
	s.OpenTargetPage(context.Background(), 1)
	err := s.InitializePageOnce(context.Background(), params.Defaults())
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("error = %v, want ErrElementNotFound", err)
	}
	if s.PageInitialized() {
		t.Error("page marked initialized after failure")
	}
}

func TestApplyParametersFillsEveryField(t *testing.T) {
	drv := newFakeDriver()
	s, _ := readySession(t, drv)
	p := params.Defaults()
	p.TmOpt = 60.5
	p.NumReturn = 7

	if err := s.ApplyParameters(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"PRIMER_PRODUCT_MIN": "100",
		"PRIMER_PRODUCT_MAX": "1200",
		"PRIMER_MIN_TM":      "58",
		"PRIMER_OPT_TM":      "60.5",
		"PRIMER_MAX_TM":      "62",
		"PRIMER_MAX_DIFF_TM": "2",
		"PRIMER_MIN_SIZE":    "18",
		"PRIMER_OPT_SIZE":    "20",
		"PRIMER_MAX_SIZE":    "25",
		"PRIMER_NUM_RETURN":  "7",
		"PRIMER_MAX_END_GC":  "4",
		"POLYX":              "4",
	}
	for field, v := range want {
		got := drv.filled(field)
		if len(got) == 0 || got[len(got)-1] != v {
			t.Errorf("%s = %v, want %s", field, got, v)
		}
	}
}

func TestOpenTargetPageReloadsPlaceholder(t *testing.T) {
	drv := newFakeDriver()
	drv.location = "data:,"
	s, _ := newTestSession(t, drv)
	s.Start(context.Background(), Edge, 1)

	if !s.OpenTargetPage(context.Background(), 2) {
		t.Fatal("OpenTargetPage failed")
	}
	if drv.reloads != 1 {
		t.Errorf("reloads = %d, want 1", drv.reloads)
	}
	if s.State() != PageUninitialized {
		t.Errorf("State() = %v", s.State())
	}
}

func TestOpenTargetPageWithoutBrowser(t *testing.T) {
	drv := newFakeDriver()
	s, _ := newTestSession(t, drv)
	if s.OpenTargetPage(context.Background(), 2) {
		t.Fatal("OpenTargetPage succeeded without browser")
	}
	if drv.navigates != 0 {
		t.Errorf("navigated %d times", drv.navigates)
	}
}

func TestStartRetriesThenGivesUp(t *testing.T) {
	drv := newFakeDriver()
	drv.launchErrs = []error{errors.New("no binary"), errors.New("no binary")}
	s, slept := newTestSession(t, drv)

	if s.Start(context.Background(), Chrome, 2) {
		t.Fatal("Start succeeded")
	}
	if len(drv.launches) != 2 || len(*slept) != 1 {
		t.Errorf("launches = %d, sleeps = %v", len(drv.launches), *slept)
	}
	if s.State() != NoSession || s.Kind() != "" {
		t.Errorf("State() = %v, Kind() = %q", s.State(), s.Kind())
	}
}

func TestStartSameKindIsNoop(t *testing.T) {
	drv := newFakeDriver()
	s, _ := newTestSession(t, drv)
	ctx := context.Background()

	if !s.Start(ctx, Edge, 1) || !s.Start(ctx, Edge, 1) {
		t.Fatal("Start failed")
	}
	if len(drv.launches) != 1 {
		t.Errorf("launches = %d, want 1", len(drv.launches))
	}

	if !s.Start(ctx, Chrome, 1) {
		t.Fatal("switch failed")
	}
	if len(drv.launches) != 2 || drv.launches[1].Kind != Chrome || drv.closed == 0 {
		t.Errorf("switch: launches = %v, closed = %d", drv.launches, drv.closed)
	}
	if s.Kind() != Chrome {
		t.Errorf("Kind() = %q", s.Kind())
	}
}

func TestEnsureAliveResetsOnFailure(t *testing.T) {
	drv := newFakeDriver()
	s, _ := readySession(t, drv)
	if !s.EnsureAlive(context.Background()) {
		t.Fatal("EnsureAlive() = false on live browser")
	}

	drv.pingErr = errors.New("target closed")
	if s.EnsureAlive(context.Background()) {
		t.Fatal("EnsureAlive() = true on dead browser")
	}
	if s.State() != NoSession || s.PageInitialized() {
		t.Errorf("state after failed ping: %v, initialized=%v", s.State(), s.PageInitialized())
	}
}

func TestValidateLocatorsReportsMissingCritical(t *testing.T) {
	drv := newFakeDriver()
	drv.miss = func(st locator.Strategy) bool { return strings.Contains(st.Value, "PRIMER_PRODUCT_MAX") }
	s, _ := readySession(t, drv)

	results, missing := s.ValidateLocators(context.Background())
	if results[locator.PCRMax] || !results[locator.PCRMin] {
		t.Errorf("results = %v", results)
	}
	if len(missing) != 1 || missing[0] != locator.PCRMax {
		t.Errorf("missing = %v", missing)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"Chrome": Chrome, "edge": Edge, " MSEDGE ": Edge} {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	_, err := ParseKind("firefox")
	if err == nil {
		t.Fatal("ParseKind(firefox) succeeded")
	}
	for _, k := range Kinds {
		if !strings.Contains(err.Error(), string(k)) {
			t.Errorf("error %q does not list %s", err, k)
		}
	}
}
