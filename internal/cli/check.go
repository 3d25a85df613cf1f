// internal/cli/check.go
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/locator"
)

var (
	checkBrowser  kindValue
	checkHeadless bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Open Primer-BLAST and verify every form element can be located",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cfg.SessionOptions()
		if cmd.Flags().Changed("headless") {
			opts.Launch.Headless = checkHeadless
		}
		session, err := newSession(cfg, opts, logger)
		if err != nil {
			return err
		}
		defer session.Close()

		ctx := cmd.Context()
		retry := cfg.BatchOptions()
		kind := checkBrowser.or(cfg.BrowserKind())
		if !session.Start(ctx, kind, retry.StartRetries) {
			return fmt.Errorf("could not start %s", kind)
		}
		if !session.OpenTargetPage(ctx, retry.PageRetries) {
			return errors.New("could not open the Primer-BLAST page")
		}

		results, missing := session.ValidateLocators(ctx)
		res := newCheckResult(string(kind), results, missing)
		if err := OutputResult(res); err != nil {
			return err
		}
		if len(missing) > 0 {
			return errAlreadyReported
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Var(&checkBrowser, "browser", "Browser engine: "+browser.KindNames()+" (default from config)")
	checkCmd.Flags().BoolVar(&checkHeadless, "headless", false, "Run the browser without a window")
}

type KeyCheck struct {
	Key      string `json:"key"`
	Found    bool   `json:"found"`
	Critical bool   `json:"critical"`
}

// CheckResult is the locator pre-flight report.
type CheckResult struct {
	Browser         string     `json:"browser"`
	Elements        []KeyCheck `json:"elements"`
	MissingCritical []string   `json:"missing_critical"`
}

func newCheckResult(browserKind string, results map[locator.Key]bool, missing []locator.Key) CheckResult {
	critical := make(map[locator.Key]bool)
	for _, k := range locator.CriticalKeys() {
		critical[k] = true
	}
	res := CheckResult{Browser: browserKind, MissingCritical: []string{}}
	for _, k := range locator.Keys() {
		res.Elements = append(res.Elements, KeyCheck{Key: k.String(), Found: results[k], Critical: critical[k]})
	}
	for _, k := range missing {
		res.MissingCritical = append(res.MissingCritical, k.String())
	}
	return res
}

func (r CheckResult) TextOutput() string {
	lines := make([]string, 0, len(r.Elements))
	found := 0
	for _, e := range r.Elements {
		mark := "ok     "
		if e.Found {
			found++
		} else {
			mark = "MISSING"
		}
		crit := ""
		if e.Critical {
			crit = " (critical)"
		}
		lines = append(lines, fmt.Sprintf("%s %s%s", mark, e.Key, crit))
	}
	out := fmt.Sprintf("%s: %d/%d elements found\n%s", r.Browser, found, len(r.Elements), indentLines(lines))
	if len(r.MissingCritical) > 0 {
		out += fmt.Sprintf("\ncritical elements missing: %v", r.MissingCritical)
	}
	return out
}
