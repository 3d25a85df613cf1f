// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/primer-cli/primerbatch/internal/batch"
	"github.com/primer-cli/primerbatch/internal/browser"
	"github.com/primer-cli/primerbatch/internal/coords"
	"github.com/primer-cli/primerbatch/internal/locator"
)

// Config is the primerbatch configuration
type Config struct {
	// Home directory holding config.yaml, presets and the default chain file
	Home string `yaml:"-"`

	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Genome   GenomeConfig   `yaml:"genome" json:"genome"`
	Timeouts TimeoutConfig  `yaml:"timeouts" json:"timeouts"`
	Retry    RetryConfig    `yaml:"retry" json:"retry"`
	Batch    BatchConfig    `yaml:"batch" json:"batch"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Serve    ServeConfig    `yaml:"serve" json:"serve"`
	Locators []LocatorEntry `yaml:"locators" json:"locators"`

	// PresetsFile is the parameter preset store
	PresetsFile string `yaml:"presets_file" json:"presets_file"`
}

type BrowserConfig struct {
	Kind         string `yaml:"kind" json:"kind"`
	ExecPath     string `yaml:"exec_path" json:"exec_path"`
	Headless     bool   `yaml:"headless" json:"headless"`
	WindowWidth  int    `yaml:"window_width" json:"window_width"`
	WindowHeight int    `yaml:"window_height" json:"window_height"`
}

type GenomeConfig struct {
	DefaultBuild string `yaml:"default_build" json:"default_build"`
	ChainFile    string `yaml:"chain_file" json:"chain_file"`
}

// TimeoutConfig values are milliseconds
type TimeoutConfig struct {
	PageLoadMs int `yaml:"page_load_ms" json:"page_load_ms"`
	ElementMs  int `yaml:"element_ms" json:"element_ms"`
	ProbeMs    int `yaml:"probe_ms" json:"probe_ms"`
	NewTabMs   int `yaml:"new_tab_ms" json:"new_tab_ms"`
	PingMs     int `yaml:"ping_ms" json:"ping_ms"`
}

type RetryConfig struct {
	StartRetries  int `yaml:"start_retries" json:"start_retries"`
	PageRetries   int `yaml:"page_retries" json:"page_retries"`
	SubmitRetries int `yaml:"submit_retries" json:"submit_retries"`
	SubmitDelayMs int `yaml:"submit_delay_ms" json:"submit_delay_ms"`
	ItemRetries   int `yaml:"item_retries" json:"item_retries"`
	ItemDelayMs   int `yaml:"item_delay_ms" json:"item_delay_ms"`
}

type BatchConfig struct {
	InterItemDelayMs int `yaml:"inter_item_delay_ms" json:"inter_item_delay_ms"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

type ServeConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LocatorEntry is an extra lookup strategy appended to a key's list at
// startup
type LocatorEntry struct {
	Key         string `yaml:"key" json:"key"`
	Method      string `yaml:"method" json:"method"`
	Value       string `yaml:"value" json:"value"`
	Description string `yaml:"description" json:"description"`
}

// Home returns the primerbatch home directory
func Home() string {
	if home := os.Getenv("PRIMERBATCH_HOME"); home != "" {
		return home
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".primerbatch")
}

// Load loads the configuration from Home()
func Load() (*Config, error) {
	return LoadFrom(Home())
}

// LoadFrom loads home/config.yaml over the defaults. A missing file yields
// the defaults.
func LoadFrom(home string) (*Config, error) {
	cfg := DefaultConfig(home)

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return expandConfigPaths(cfg), nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return expandConfigPaths(cfg), nil
}

// expandConfigPaths expands all path fields in the config
func expandConfigPaths(cfg *Config) *Config {
	cfg.Genome.ChainFile = expandPath(cfg.Genome.ChainFile, cfg.Home)
	cfg.PresetsFile = expandPath(cfg.PresetsFile, cfg.Home)
	cfg.Log.File = expandPath(cfg.Log.File, cfg.Home)
	cfg.Browser.ExecPath = expandPath(cfg.Browser.ExecPath, cfg.Home)
	return cfg
}

// expandPath resolves a leading '~' to the user's home directory and
// relative paths against home.
func expandPath(path, home string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	if !filepath.IsAbs(path) {
		return filepath.Join(home, path)
	}
	return path
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []string

	if _, err := browser.ParseKind(c.Browser.Kind); err != nil {
		errs = append(errs, "browser.kind: "+err.Error())
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		errs = append(errs, "browser.window_width and window_height must not be negative")
	}
	if _, err := coords.ParseBuild(c.Genome.DefaultBuild); err != nil {
		errs = append(errs, "genome.default_build: "+err.Error())
	}

	for name, v := range map[string]int{
		"timeouts.page_load_ms": c.Timeouts.PageLoadMs,
		"timeouts.element_ms":   c.Timeouts.ElementMs,
		"timeouts.probe_ms":     c.Timeouts.ProbeMs,
		"timeouts.new_tab_ms":   c.Timeouts.NewTabMs,
		"timeouts.ping_ms":      c.Timeouts.PingMs,
	} {
		if v < MinTimeoutMs {
			errs = append(errs, fmt.Sprintf("%s must be at least %d ms", name, MinTimeoutMs))
		}
	}

	for name, v := range map[string]int{
		"retry.start_retries":  c.Retry.StartRetries,
		"retry.page_retries":   c.Retry.PageRetries,
		"retry.submit_retries": c.Retry.SubmitRetries,
		"retry.item_retries":   c.Retry.ItemRetries,
	} {
		if v < 1 {
			errs = append(errs, name+" must be at least 1")
		}
	}
	if c.Retry.SubmitDelayMs < 0 || c.Retry.ItemDelayMs < 0 || c.Batch.InterItemDelayMs < 0 {
		errs = append(errs, "retry and batch delays must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}

	for i, e := range c.Locators {
		if _, err := locator.ParseKey(e.Key); err != nil {
			errs = append(errs, fmt.Sprintf("locators[%d]: %v", i, err))
		}
		if _, err := locator.ParseMethod(e.Method); err != nil {
			errs = append(errs, fmt.Sprintf("locators[%d]: %v", i, err))
		}
		if e.Value == "" {
			errs = append(errs, fmt.Sprintf("locators[%d]: value is required", i))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// BrowserKind returns the configured browser engine.
func (c *Config) BrowserKind() browser.Kind {
	k, err := browser.ParseKind(c.Browser.Kind)
	if err != nil {
		return browser.Edge
	}
	return k
}

// DefaultBuild returns the configured input genome build.
func (c *Config) DefaultBuild() coords.Build {
	b, err := coords.ParseBuild(c.Genome.DefaultBuild)
	if err != nil {
		return coords.Legacy
	}
	return b
}

// SessionOptions maps the configuration onto browser session options.
func (c *Config) SessionOptions() browser.Options {
	o := browser.DefaultOptions()
	o.Launch = browser.LaunchOptions{
		Kind:         c.BrowserKind(),
		ExecPath:     c.Browser.ExecPath,
		Headless:     c.Browser.Headless,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
	}
	o.PageLoadTimeout = ms(c.Timeouts.PageLoadMs)
	o.ElementTimeout = ms(c.Timeouts.ElementMs)
	o.ProbeTimeout = ms(c.Timeouts.ProbeMs)
	o.NewTabTimeout = ms(c.Timeouts.NewTabMs)
	o.PingTimeout = ms(c.Timeouts.PingMs)
	o.RetryDelay = ms(c.Retry.SubmitDelayMs)
	return o
}

// BatchOptions maps the configuration onto orchestrator options.
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		StartRetries:   c.Retry.StartRetries,
		PageRetries:    c.Retry.PageRetries,
		SubmitRetries:  c.Retry.SubmitRetries,
		ItemRetries:    c.Retry.ItemRetries,
		ItemDelay:      ms(c.Retry.ItemDelayMs),
		InterItemDelay: ms(c.Batch.InterItemDelayMs),
	}
}

// ApplyLocators appends the configured extra strategies to l.
func (c *Config) ApplyLocators(l *locator.Locator) error {
	for i, e := range c.Locators {
		key, err := locator.ParseKey(e.Key)
		if err != nil {
			return fmt.Errorf("locators[%d]: %w", i, err)
		}
		method, err := locator.ParseMethod(e.Method)
		if err != nil {
			return fmt.Errorf("locators[%d]: %w", i, err)
		}
		desc := e.Description
		if desc == "" {
			desc = "configured " + e.Method
		}
		l.AddStrategy(key, locator.Strategy{Method: method, Value: e.Value, Description: desc})
	}
	return nil
}
