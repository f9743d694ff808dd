package core

import "regexp"

// placeholderPattern matches {{identifier}} with no whitespace inside the braces.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Render substitutes every {{identifier}} placeholder whose identifier is a
// key of rec with the string form of that value (see Record.Text).
// Placeholders for missing keys and any other brace usage are left unchanged.
func Render(template string, rec Record) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if text, ok := rec.Text(name); ok {
			return text
		}
		return match
	})
}

// Placeholders returns the distinct identifiers referenced by template in
// order of first appearance.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// MissingPlaceholders returns the identifiers in template that rec cannot fill.
func MissingPlaceholders(template string, rec Record) []string {
	var missing []string
	for _, name := range Placeholders(template) {
		if !rec.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
