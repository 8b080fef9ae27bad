package agentrt

import (
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractJSON tolerates surrounding prose and fenced code blocks around a
// JSON payload: it tries, in order, a fenced block's contents, then the
// substring between the first '{' and the last '}', then the raw text
// itself. The caller still attempts to unmarshal whatever comes back.
func ExtractJSON(text string) string {
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}

	return strings.TrimSpace(text)
}
