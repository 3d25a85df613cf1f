// internal/cli/presets.go
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/primer-cli/primerbatch/internal/params"
)

var (
	presetsSaveFrom   string
	presetsSaveParams *paramFlags
	presetsClear      bool
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage named primer parameter presets",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := params.NewStore(cfg.PresetsFile)
		names, err := store.Names()
		if err != nil {
			return err
		}
		if names == nil {
			names = []string{}
		}
		def, err := store.DefaultName()
		if err != nil {
			return err
		}
		return OutputResult(PresetList{Presets: names, Default: def})
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show [NAME]",
	Short: "Show a preset (or the parameters a run would use)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		p, resolved, err := params.NewStore(cfg.PresetsFile).Resolve(name)
		if err != nil {
			return err
		}
		return OutputResult(PresetView{Name: resolved, Parameters: p})
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save a preset from parameter flags",
	Long: `Save NAME with the given parameter flags applied on top of --from
(another preset) or the built-in defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := params.NewStore(cfg.PresetsFile)
		base := params.Defaults()
		if presetsSaveFrom != "" {
			p, ok, err := store.Load(presetsSaveFrom)
			if err != nil {
				return err
			}
			if !ok {
				return NewUsageError(fmt.Sprintf("preset %q not found", presetsSaveFrom))
			}
			base = p
		}
		p, err := presetsSaveParams.apply(base)
		if err != nil {
			return err
		}
		if err := store.Save(args[0], p); err != nil {
			return err
		}
		return OutputResult(PresetView{Name: args[0], Parameters: p})
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := params.NewStore(cfg.PresetsFile).Delete(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return NewUsageError(fmt.Sprintf("preset %q not found", args[0]))
		}
		return OutputResult(PresetAction{Name: args[0], Action: "deleted"})
	},
}

var presetsDefaultCmd = &cobra.Command{
	Use:   "default [NAME]",
	Short: "Show or set the default preset",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := params.NewStore(cfg.PresetsFile)
		switch {
		case presetsClear:
			if err := store.SetDefault(""); err != nil {
				return err
			}
			return OutputResult(PresetAction{Action: "default cleared"})
		case len(args) == 1:
			if err := store.SetDefault(args[0]); err != nil {
				return err
			}
			return OutputResult(PresetAction{Name: args[0], Action: "set as default"})
		}
		def, err := store.DefaultName()
		if err != nil {
			return err
		}
		return OutputResult(PresetList{Default: def})
	},
}

func init() {
	presetsSaveCmd.Flags().StringVar(&presetsSaveFrom, "from", "", "Start from this preset instead of the defaults")
	presetsSaveParams = addParamFlags(presetsSaveCmd.Flags())
	presetsDefaultCmd.Flags().BoolVar(&presetsClear, "clear", false, "Clear the default preset")

	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsShowCmd)
	presetsCmd.AddCommand(presetsSaveCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
	presetsCmd.AddCommand(presetsDefaultCmd)
}

type PresetList struct {
	Presets []string `json:"presets,omitempty"`
	Default string   `json:"default"`
}

func (l PresetList) TextOutput() string {
	if l.Presets == nil {
		if l.Default == "" {
			return "no default preset"
		}
		return "default: " + l.Default
	}
	if len(l.Presets) == 0 {
		return "no presets saved"
	}
	lines := make([]string, 0, len(l.Presets))
	for _, n := range l.Presets {
		if n == l.Default {
			n += " (default)"
		}
		lines = append(lines, n)
	}
	return strings.Join(lines, "\n")
}

type PresetView struct {
	Name       string            `json:"name"`
	Parameters params.Parameters `json:"parameters"`
}

func (v PresetView) TextOutput() string {
	name := v.Name
	if name == "" {
		name = "(built-in defaults)"
	}
	p := v.Parameters
	return fmt.Sprintf(`%s
  product size:  %d-%d
  Tm:            %.1f / %.1f / %.1f (max diff %.1f)
  primer size:   %d / %d / %d
  pairs:         %d
  3' GC max:     %d
  poly-X max:    %d
  windows:       -%d / +%d`,
		name, p.PCRMin, p.PCRMax, p.TmMin, p.TmOpt, p.TmMax, p.TmMaxDiff,
		p.PrimerMinSize, p.PrimerOptSize, p.PrimerMaxSize, p.NumReturn,
		p.EndGCMax, p.MaxPolyX, p.ExtensionLeft, p.ExtensionRight)
}

type PresetAction struct {
	Name   string `json:"name,omitempty"`
	Action string `json:"action"`
}

func (a PresetAction) TextOutput() string {
	if a.Name == "" {
		return a.Action
	}
	return fmt.Sprintf("%s: %s", a.Name, a.Action)
}
