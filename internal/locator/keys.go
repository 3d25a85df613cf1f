// internal/locator/keys.go
package locator

import "fmt"

// Key names one logical element of the target form.
type Key int

const (
	SeqInput Key = iota
	OneTargetTab
	AdvancedButton
	PCRMin
	PCRMax
	TmMin
	TmOpt
	TmMax
	TmMaxDiff
	PrimerMinSize
	PrimerOptSize
	PrimerMaxSize
	NumReturn
	EndGCMax
	PolyX
	Primer5Start
	Primer5End
	Primer3Start
	Primer3End
	Organism
	Database
	SubmitButton
	NoSNPOption
	NewWindowOption

	numKeys
)

var keyNames = [numKeys]string{
	SeqInput:        "seq_input",
	OneTargetTab:    "one_target_tab",
	AdvancedButton:  "advanced_button",
	PCRMin:          "pcr_min",
	PCRMax:          "pcr_max",
	TmMin:           "tm_min",
	TmOpt:           "tm_opt",
	TmMax:           "tm_max",
	TmMaxDiff:       "tm_max_diff",
	PrimerMinSize:   "primer_min_size",
	PrimerOptSize:   "primer_opt_size",
	PrimerMaxSize:   "primer_max_size",
	NumReturn:       "primer_num_return",
	EndGCMax:        "end_gc_max",
	PolyX:           "poly_x",
	Primer5Start:    "primer5_start",
	Primer5End:      "primer5_end",
	Primer3Start:    "primer3_start",
	Primer3End:      "primer3_end",
	Organism:        "organism",
	Database:        "database",
	SubmitButton:    "submit_button",
	NoSNPOption:     "no_snp_option",
	NewWindowOption: "new_window_option",
}

func (k Key) String() string {
	if k < 0 || k >= numKeys {
		return fmt.Sprintf("key(%d)", int(k))
	}
	return keyNames[k]
}

// Keys returns every element key in declaration order.
func Keys() []Key {
	out := make([]Key, numKeys)
	for i := range out {
		out[i] = Key(i)
	}
	return out
}

// ParseKey maps a configuration name such as "submit_button" to its Key.
func ParseKey(name string) (Key, error) {
	for i, n := range keyNames {
		if n == name {
			return Key(i), nil
		}
	}
	return 0, fmt.Errorf("unknown element key %q", name)
}

// CriticalKeys are the elements without which no submission can work.
func CriticalKeys() []Key {
	return []Key{SeqInput, OneTargetTab, PCRMin, PCRMax, SubmitButton}
}

// Method is the lookup technique of a strategy.
type Method int

const (
	ByID Method = iota
	ByName
	ByCSS
	ByXPath
	ByLinkText
	ByClass
)

var methodNames = map[Method]string{
	ByID:       "id",
	ByName:     "name",
	ByCSS:      "css",
	ByXPath:    "xpath",
	ByLinkText: "link_text",
	ByClass:    "class",
}

func (m Method) String() string {
	if n, ok := methodNames[m]; ok {
		return n
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod maps a configuration name such as "css" to its Method.
func ParseMethod(name string) (Method, error) {
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown locator method %q", name)
}
