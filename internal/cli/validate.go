// internal/cli/validate.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/coords"
)

var validateSkip bool

var validateCmd = &cobra.Command{
	Use:   "validate [FILE|-]",
	Short: "Check a coordinate list without submitting anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}
		var valid, invalid []coords.Record
		if validateSkip {
			valid, invalid = coords.ParseLenient(text)
		} else {
			valid, invalid = coords.ValidateBatch(text)
		}
		return OutputResult(ValidateResult{
			Valid:   viewRecords(valid),
			Invalid: viewRecords(invalid),
		})
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateSkip, "skip-validation", false, "Use the lenient parser that accepts any chromosome name")
}

// ValidateResult partitions the input lines.
type ValidateResult struct {
	Valid   []recordView `json:"valid"`
	Invalid []recordView `json:"invalid"`
}

func (r ValidateResult) TextOutput() string {
	lines := make([]string, 0, len(r.Invalid))
	for _, rec := range r.Invalid {
		lines = append(lines, fmt.Sprintf("line %d %q: %s", rec.Line, rec.Raw, rec.Error))
	}
	out := fmt.Sprintf("%d valid, %d invalid", len(r.Valid), len(r.Invalid))
	if len(lines) > 0 {
		out += "\n" + indentLines(lines)
	}
	return out
}
