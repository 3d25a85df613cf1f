// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"

	"github.com/primer-cli/primerbatch/internal/locator"
)

var (
	// ErrNoSession is returned when an operation needs a running browser.
	ErrNoSession = errors.New("browser session not started")

	// ErrElementNotFound is returned when no locator strategy resolves a
	// required element. It aborts one submission attempt, not the batch.
	ErrElementNotFound = errors.New("element not found")

	// ErrNewTabTimeout is returned when the results tab did not open in time.
	ErrNewTabTimeout = errors.New("timed out waiting for results tab")
)

// Kind is a supported browser engine.
type Kind string

const (
	Chrome Kind = "chrome"
	Edge   Kind = "edge"
)

// Kinds lists the supported engines.
var Kinds = []Kind{Chrome, Edge}

// ParseKind accepts "chrome" or "edge" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chrome", "chromium", "google-chrome":
		return Chrome, nil
	case "edge", "msedge", "microsoft-edge":
		return Edge, nil
	}
	return "", fmt.Errorf("unsupported browser %q (expected one of %s)", s, KindNames())
}

// KindNames joins the supported engines for help and error text.
func KindNames() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Kind         Kind
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int
}

// Driver is the low-level browser control surface used by Session. All
// methods are called from a single goroutine.
type Driver interface {
	locator.Querier

	Launch(ctx context.Context, opts LaunchOptions) error
	Ping(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	WaitReady(ctx context.Context) error

	Fill(ctx context.Context, node *cdp.Node, value string) error
	Click(ctx context.Context, node *cdp.Node) error
	SelectValue(ctx context.Context, node *cdp.Node, value string) error

	// PageCount returns the number of open page targets (tabs and windows).
	PageCount(ctx context.Context) (int, error)
	// Activate brings the controlled tab back to the front.
	Activate(ctx context.Context) error
	Close() error
}
