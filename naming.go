package aobgen

import (
	"fmt"
	"go/token"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FieldName converts a signature name such as "unit_table", "chr-dbg.flags"
// or "widgetStates" to the exported Go identifier used for it in generated
// code ("UnitTable", "ChrDbgFlags", "WidgetStates").
func FieldName(name string) (string, error) {
	words := splitWords(name)
	if len(words) == 0 {
		return "", fmt.Errorf("signature name %q has no identifier characters", name)
	}

	title := cases.Title(language.Und)
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(title.String(w))
	}

	ident := sb.String()
	if !token.IsIdentifier(ident) || !token.IsExported(ident) {
		return "", fmt.Errorf("signature name %q does not map to an exported identifier (got %q)", name, ident)
	}
	return ident, nil
}

// fieldNames maps every name to its field name, rejecting collisions.
func fieldNames(names []string) ([]string, error) {
	fields := make([]string, len(names))
	owner := make(map[string]string, len(names))
	for i, n := range names {
		f, err := FieldName(n)
		if err != nil {
			return nil, err
		}
		if prev, dup := owner[f]; dup {
			return nil, fmt.Errorf("signature names %q and %q both map to field %s", prev, n, f)
		}
		owner[f] = n
		fields[i] = f
	}
	return fields, nil
}

// splitWords breaks s on non-alphanumeric runes and on lower-to-upper case
// transitions.
func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
		prev  rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}
