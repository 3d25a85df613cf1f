// internal/cli/accession.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/coords"
)

var accessionBuild buildValue

var accessionCmd = &cobra.Command{
	Use:   "accession CHROM",
	Short: "Print the RefSeq accession of a chromosome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build := accessionBuild.or(coords.Current)
		chrom := coords.NormalizeChromosome(args[0])
		acc := coords.DefaultAccessions().Lookup(build, chrom)
		if acc == "" {
			return NewUsageError(fmt.Sprintf("invalid chromosome %q: no %s accession", args[0], build))
		}
		return OutputResult(AccessionResult{Build: string(build), Chromosome: chrom, Accession: acc})
	},
}

func init() {
	accessionCmd.Flags().Var(&accessionBuild, "build", "Genome build: "+coords.BuildNames()+" (default hg38/GRCh38)")
}

type AccessionResult struct {
	Build      string `json:"build"`
	Chromosome string `json:"chromosome"`
	Accession  string `json:"accession"`
}

func (r AccessionResult) TextOutput() string {
	return fmt.Sprintf("%s chr%s: %s", r.Build, r.Chromosome, r.Accession)
}
