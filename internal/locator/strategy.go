// internal/locator/strategy.go
package locator

import (
	"fmt"
	"strings"
)

// Strategy is one way to find an element.
type Strategy struct {
	Method      Method
	Value       string
	Description string
}

func (s Strategy) String() string {
	if s.Description != "" {
		return s.Description
	}
	return fmt.Sprintf("%s=%s", s.Method, s.Value)
}

// Selector translates the strategy into either a CSS selector or an XPath
// expression. xpath reports which of the two sel is.
func (s Strategy) Selector() (sel string, xpath bool) {
	switch s.Method {
	case ByID:
		return fmt.Sprintf("[id=%s]", cssString(s.Value)), false
	case ByName:
		return fmt.Sprintf("[name=%s]", cssString(s.Value)), false
	case ByClass:
		return "." + s.Value, false
	case ByXPath:
		return s.Value, true
	case ByLinkText:
		return fmt.Sprintf("//a[normalize-space(.)=%s]", xpathString(s.Value)), true
	default:
		return s.Value, false
	}
}

func cssString(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

func xpathString(v string) string {
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	parts := strings.Split(v, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

// DefaultTable returns a fresh copy of the built-in strategy table. Order
// within each list is priority order.
func DefaultTable() map[Key][]Strategy {
	idName := func(v string) []Strategy {
		return []Strategy{
			{ByID, v, "id"},
			{ByName, v, "name"},
		}
	}
	idNameCSS := func(v string) []Strategy {
		return append(idName(v), Strategy{ByCSS, fmt.Sprintf(`input[name="%s"]`, v), "css input name"})
	}

	return map[Key][]Strategy{
		SeqInput: {
			{ByID, "seq", "id"},
			{ByName, "seq", "name"},
			{ByCSS, `textarea[name="seq"]`, "css textarea"},
			{ByXPath, `//textarea[@id="seq"]`, "xpath textarea"},
		},
		OneTargetTab: {
			{ByID, "OneTargTab", "id"},
			{ByXPath, `//a[@id="OneTargTab"]`, "xpath anchor"},
			{ByCSS, "a#OneTargTab", "css anchor"},
			{ByLinkText, "Pick primer", "link text"},
		},
		AdvancedButton: {
			{ByID, "btnDescrOver", "id"},
			{ByClass, "jig-ncbiinpagenav", "class"},
			{ByXPath, `//button[@id="btnDescrOver"]`, "xpath button"},
			{ByCSS, "button#btnDescrOver", "css button"},
		},
		PCRMin:        idNameCSS("PRIMER_PRODUCT_MIN"),
		PCRMax:        idNameCSS("PRIMER_PRODUCT_MAX"),
		TmMin:         idName("PRIMER_MIN_TM"),
		TmOpt:         idName("PRIMER_OPT_TM"),
		TmMax:         idName("PRIMER_MAX_TM"),
		TmMaxDiff:     idName("PRIMER_MAX_DIFF_TM"),
		PrimerMinSize: idName("PRIMER_MIN_SIZE"),
		PrimerOptSize: idName("PRIMER_OPT_SIZE"),
		PrimerMaxSize: idName("PRIMER_MAX_SIZE"),
		NumReturn:     idName("PRIMER_NUM_RETURN"),
		EndGCMax:      idName("PRIMER_MAX_END_GC"),
		PolyX:         idName("POLYX"),
		Primer5Start:  idName("PRIMER5_START"),
		Primer5End:    idName("PRIMER5_END"),
		Primer3Start:  idName("PRIMER3_START"),
		Primer3End:    idName("PRIMER3_END"),
		Organism:      idName("ORGANISM"),
		Database:      idName("PRIMER_SPECIFICITY_DATABASE"),
		SubmitButton: {
			{ByCSS, "input.blastbutton.prbutton", "css class"},
			{ByXPath, `//input[@type="submit" and @class="blastbutton prbutton"]`, "xpath submit"},
			{ByCSS, `input[type="submit"].prbutton`, "css submit"},
			{ByXPath, `//input[@value="Get Primers"]`, "button text"},
		},
		NoSNPOption: {
			{ByXPath, `//label[@for='NO_SNP']`, "label"},
			{ByID, "NO_SNP", "id"},
		},
		NewWindowOption: {
			{ByXPath, `//label[@for='nw2']`, "label"},
			{ByID, "nw2", "id"},
		},
	}
}
