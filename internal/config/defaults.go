// internal/config/defaults.go
package config

// Default browser settings
const (
	DefaultBrowserKind  = "edge"
	DefaultWindowWidth  = 1400
	DefaultWindowHeight = 900
)

// Default timeouts in milliseconds
const (
	DefaultPageLoadMs = 30000
	DefaultElementMs  = 20000
	DefaultProbeMs    = 5000
	DefaultNewTabMs   = 15000
	DefaultPingMs     = 5000

	MinTimeoutMs = 100
)

// Default retry budgets
const (
	DefaultStartRetries  = 2
	DefaultPageRetries   = 2
	DefaultSubmitRetries = 3
	DefaultSubmitDelayMs = 5000
	DefaultItemRetries   = 3
	DefaultItemDelayMs   = 5000

	DefaultInterItemDelayMs = 2000
)

// DefaultChainFile is the hg19 to hg38 chain distributed by UCSC.
const DefaultChainFile = "hg19ToHg38.over.chain.gz"

// DefaultConfig returns the default configuration rooted at home
func DefaultConfig(home string) *Config {
	return &Config{
		Home: home,

		Browser: BrowserConfig{
			Kind:         DefaultBrowserKind,
			WindowWidth:  DefaultWindowWidth,
			WindowHeight: DefaultWindowHeight,
		},

		Genome: GenomeConfig{
			DefaultBuild: "hg19/GRCh37",
			ChainFile:    DefaultChainFile,
		},

		Timeouts: TimeoutConfig{
			PageLoadMs: DefaultPageLoadMs,
			ElementMs:  DefaultElementMs,
			ProbeMs:    DefaultProbeMs,
			NewTabMs:   DefaultNewTabMs,
			PingMs:     DefaultPingMs,
		},

		Retry: RetryConfig{
			StartRetries:  DefaultStartRetries,
			PageRetries:   DefaultPageRetries,
			SubmitRetries: DefaultSubmitRetries,
			SubmitDelayMs: DefaultSubmitDelayMs,
			ItemRetries:   DefaultItemRetries,
			ItemDelayMs:   DefaultItemDelayMs,
		},

		Batch: BatchConfig{
			InterItemDelayMs: DefaultInterItemDelayMs,
		},

		Log: LogConfig{
			Level: "info",
		},

		Serve: ServeConfig{
			Addr: "127.0.0.1:8765",
		},

		PresetsFile: "presets.yaml",
	}
}
