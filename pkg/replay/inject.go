package replay

import "regexp"

// placeholderPattern matches {{identifier}} occurrences in recorded values.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Inject substitutes every {{identifier}} in value from bindings. An
// identifier absent from the bindings is left verbatim — not an error — and
// is reported in missing so operators can see the unresolved placeholder.
func Inject(value string, bindings map[string]string) (result string, missing []string) {
	seen := map[string]bool{}
	result = placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := bindings[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})
	return result, missing
}
