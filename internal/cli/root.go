// internal/cli/root.go
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/primer-cli/primerbatch/internal/config"
	"github.com/primer-cli/primerbatch/internal/logging"
)

var (
	// Global flags
	flagJSON       bool
	flagVerbose    bool
	flagConfigHome string

	// Global config and logger, set by PersistentPreRunE
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "primerbatch",
	Short: "Batch primer design submissions to NCBI Primer-BLAST",
	Long: `primerbatch reads genomic coordinates (one "CHROM POS" per line), lifts
hg19/GRCh37 positions to hg38/GRCh38, maps chromosomes to RefSeq accessions and
submits one Primer-BLAST job per coordinate through a real browser.

All commands support --json for machine-readable output.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagConfigHome != "" {
			os.Setenv("PRIMERBATCH_HOME", flagConfigHome)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.Log.Level
		if flagVerbose {
			level = "debug"
		}
		logger, logCloser, err = logging.New(level, cfg.Log.File)
		if err != nil {
			return err
		}

		// Auto-detect JSON mode if stdout is not a TTY, unless --json was set
		// explicitly either way
		if !isTerminal(os.Stdout) && !cmd.Flags().Changed("json") {
			flagJSON = true
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	// We handle our own error output
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"Verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&flagConfigHome, "config-home", "",
		"Configuration directory (default: $PRIMERBATCH_HOME or ~/.primerbatch)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(accessionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
