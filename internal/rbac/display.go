package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayName renders a permission code for humans, e.g. "approvals.review"
// becomes "Approvals Review".
func DisplayName(code string) string {
	words := strings.FieldsFunc(code, func(r rune) bool {
		return r == '.' || r == '_' || r == ':'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// SplitAction separates a permission code into resource and action at the
// last dot. Codes without a dot are returned as a resource with an empty action.
func SplitAction(code string) (resource, action string) {
	idx := strings.LastIndex(code, ".")
	if idx < 0 {
		return code, ""
	}
	return code[:idx], code[idx+1:]
}
