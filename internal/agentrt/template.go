package agentrt

import (
	"regexp"

	"github.com/forgeai/forge/internal/ferr"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// FormatTemplate substitutes {placeholder} references in template from
// values. Placeholders are declared by the prompt itself, never hardcoded
// by the runtime; a referenced placeholder missing from values is an
// input_error.
func FormatTemplate(template string, values map[string]string) (string, error) {
	var missing string
	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok {
			missing = name
			return match
		}
		return v
	})
	if missing != "" {
		return "", ferr.New(ferr.KindInput, "agentrt", "FormatTemplate", "missing required placeholder {"+missing+"}", nil)
	}
	return result, nil
}
