// internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/primer-cli/primerbatch/internal/locator"
)

// ChromeDriver drives a locally launched Chromium-family browser over CDP.
type ChromeDriver struct {
	logger *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewChromeDriver returns an unlaunched driver.
func NewChromeDriver(logger *slog.Logger) *ChromeDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeDriver{logger: logger.With("comp", "chromedp")}
}

var edgeCandidates = map[string][]string{
	"linux":   {"microsoft-edge", "microsoft-edge-stable", "msedge"},
	"darwin":  {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
	"windows": {`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`, `C:\Program Files\Microsoft\Edge\Application\msedge.exe`, "msedge"},
}

// ExecPath resolves the browser binary for kind. An explicit path wins. For
// Chrome an empty result lets chromedp search its own defaults.
func ExecPath(kind Kind, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("browser executable %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if kind != Edge {
		return "", nil
	}
	for _, c := range edgeCandidates[goruntime.GOOS] {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("edge executable not found; set browser.exec_path")
}

// Launch starts the browser. The process outlives ctx; ctx bounds only the
// startup handshake.
func (d *ChromeDriver) Launch(ctx context.Context, o LaunchOptions) error {
	d.Close()

	path, err := ExecPath(o.Kind, o.ExecPath)
	if err != nil {
		return err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("incognito", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("log-level", "3"),
		chromedp.NoSandbox,
	)
	if o.WindowWidth > 0 && o.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(o.WindowWidth, o.WindowHeight))
	}
	if path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		d.logger.Debug(fmt.Sprintf(format, args...))
	}))

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(bctx) }()
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("launch %s: %w", o.Kind, err)
	}

	d.mu.Lock()
	d.allocCancel, d.ctx, d.cancel = allocCancel, bctx, cancel
	d.mu.Unlock()
	d.logger.Info("browser launched", "kind", o.Kind, "headless", o.Headless, "exec", path)
	return nil
}

// derive returns a context bound to the browser tab that also carries the
// deadline and cancellation of ctx.
func (d *ChromeDriver) derive(ctx context.Context) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	bctx := d.ctx
	d.mu.Unlock()
	if bctx == nil {
		return nil, nil, ErrNoSession
	}

	rctx, cancel := context.WithCancel(bctx)
	if dl, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		rctx, dcancel = context.WithDeadline(rctx, dl)
		prev := cancel
		cancel = func() { dcancel(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return rctx, func() { stop(); cancel() }, nil
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel, err := d.derive(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

func (d *ChromeDriver) Ping(ctx context.Context) error {
	var state string
	return d.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *ChromeDriver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *ChromeDriver) WaitReady(ctx context.Context) error {
	return d.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// Query implements locator.Querier.
func (d *ChromeDriver) Query(ctx context.Context, s locator.Strategy, clickable bool) (*cdp.Node, error) {
	sel, xpath := s.Selector()
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if xpath {
		opts = []chromedp.QueryOption{chromedp.BySearch}
	}
	if clickable {
		opts = append(opts, chromedp.NodeVisible)
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return nodes[0], nil
}

// callOn runs a JS function with this bound to node and returns its JSON
// result.
func (d *ChromeDriver) callOn(ctx context.Context, node *cdp.Node, fn string) (string, error) {
	var out string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script error: %s", exc.Text)
		}
		if res != nil {
			out = string(res.Value)
		}
		return nil
	}))
	return out, err
}

func (d *ChromeDriver) Fill(ctx context.Context, node *cdp.Node, value string) error {
	js := fmt.Sprintf(`function() {
		this.focus();
		this.value = '';
		this.value = %s;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, strconv.Quote(value))
	if _, err := d.callOn(ctx, node, js); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (d *ChromeDriver) Click(ctx context.Context, node *cdp.Node) error {
	js := `function() { this.scrollIntoView({block: 'center'}); this.click(); }`
	if _, err := d.callOn(ctx, node, js); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (d *ChromeDriver) SelectValue(ctx context.Context, node *cdp.Node, value string) error {
	js := fmt.Sprintf(`function() {
		var v = %s;
		var ok = Array.prototype.some.call(this.options || [], function(o) { return o.value === v; });
		if (!ok) return false;
		this.value = v;
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}`, strconv.Quote(value))
	out, err := d.callOn(ctx, node, js)
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	if out != "true" {
		return fmt.Errorf("select failed: no option with value %q", value)
	}
	return nil
}

func (d *ChromeDriver) PageCount(ctx context.Context) (int, error) {
	rctx, cancel, err := d.derive(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	infos, err := chromedp.Targets(rctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range infos {
		if t.Type == "page" {
			n++
		}
	}
	return n, nil
}

func (d *ChromeDriver) Activate(ctx context.Context) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// Close shuts the browser down. It is safe to call on an unlaunched driver.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	bctx, cancel, allocCancel := d.ctx, d.cancel, d.allocCancel
	d.ctx, d.cancel, d.allocCancel = nil, nil, nil
	d.mu.Unlock()

	if bctx == nil {
		return nil
	}
	err := chromedp.Cancel(bctx)
	cancel()
	allocCancel()
	if err != nil {
		d.logger.Warn("browser close", "err", err)
	}
	return err
}
