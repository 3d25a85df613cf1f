// internal/cli/convert.go
package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/coords"
)

var convertChain string

var convertCmd = &cobra.Command{
	Use:   "convert CHROM POS",
	Short: "Lift one hg19/GRCh37 position to hg38/GRCh38",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[1])
		if err != nil || pos <= 0 {
			return NewUsageError(fmt.Sprintf("invalid position %q: must be a positive integer", args[1]))
		}
		chrom := coords.NormalizeChromosome(args[0])
		if !coords.IsSupportedChromosome(chrom) {
			return NewUsageError(fmt.Sprintf("invalid chromosome %q", args[0]))
		}

		path := cfg.Genome.ChainFile
		if convertChain != "" {
			path = convertChain
		}
		r, err := coords.LoadResolver(path, logger)
		if err != nil {
			return err
		}
		conv := r.ConvertBuild(chrom, pos)
		if conv.Err != nil {
			return conv.Err
		}
		return OutputResult(ConvertResult{
			From:      locus{Build: string(coords.Legacy), Chromosome: chrom, Position: pos},
			To:        locus{Build: string(coords.Current), Chromosome: conv.Chromosome, Position: conv.Position},
			Accession: r.ResolveAccession(conv.Chromosome, coords.Current),
		})
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertChain, "chain", "", "Liftover chain file (default from config)")
}

type locus struct {
	Build      string `json:"build"`
	Chromosome string `json:"chromosome"`
	Position   int    `json:"position"`
}

// ConvertResult is one lifted locus.
type ConvertResult struct {
	From      locus  `json:"from"`
	To        locus  `json:"to"`
	Accession string `json:"accession,omitempty"`
}

func (r ConvertResult) TextOutput() string {
	out := fmt.Sprintf("%s chr%s:%s -> %s chr%s:%s",
		r.From.Build, r.From.Chromosome, humanize.Comma(int64(r.From.Position)),
		r.To.Build, r.To.Chromosome, humanize.Comma(int64(r.To.Position)))
	if r.Accession != "" {
		out += fmt.Sprintf(" (%s:%d)", r.Accession, r.To.Position)
	}
	return out
}
