package collab

import (
	"context"
	"fmt"
	"strings"
)

// ChangeType mirrors agentrt.ChangeType without importing it, so collab has
// no dependency on the Agent Runtime package.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// MergeRequest is the Merge skill's input.
type MergeRequest struct {
	OriginalContent *string // nil for type=create
	FilePath        string
	Type            ChangeType
	Content         string
	Diff            string
}

// MergeOutcome is the Merge skill's result.
type MergeOutcome struct {
	Content string
	Success bool
	Error   string
}

// Merger applies a textual change to a file's prior content, treated as a
// black box (original, change) -> merged.
type Merger interface {
	Merge(ctx context.Context, req MergeRequest) (MergeOutcome, error)
}

// TextMerger implements the simplest faithful merge: verbatim replace when
// the change carries full content, and a line-oriented unified-diff apply
// when it carries a diff instead. Non-goals exclude a sophisticated
// diff/merge engine, so this covers exactly the two cases FileChange can
// produce.
type TextMerger struct{}

func NewTextMerger() *TextMerger { return &TextMerger{} }

func (m *TextMerger) Merge(ctx context.Context, req MergeRequest) (MergeOutcome, error) {
	if req.Type == ChangeDelete {
		return MergeOutcome{Content: "", Success: true}, nil
	}

	if req.Content != "" {
		return MergeOutcome{Content: req.Content, Success: true}, nil
	}

	if req.Diff == "" {
		return MergeOutcome{Success: false, Error: "change has neither content nor diff"}, nil
	}

	var original string
	if req.OriginalContent != nil {
		original = *req.OriginalContent
	}

	merged, err := applyUnifiedDiff(original, req.Diff)
	if err != nil {
		return MergeOutcome{Success: false, Error: err.Error()}, nil
	}
	return MergeOutcome{Content: merged, Success: true}, nil
}

// applyUnifiedDiff applies a minimal unified-diff subset: context lines
// (" "), additions ("+"), and removals ("-"), hunk headers are ignored
// beyond their marker. It is intentionally small; real-world unified diffs
// with fuzzy offsets are out of scope (non-goal: sophisticated merge).
func applyUnifiedDiff(original, diff string) (string, error) {
	originalLines := strings.Split(original, "\n")
	var result []string
	idx := 0

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			result = append(result, line[1:])
		case strings.HasPrefix(line, "-"):
			if idx >= len(originalLines) {
				return "", fmt.Errorf("diff removes a line beyond the original's length")
			}
			idx++
		case strings.HasPrefix(line, " "):
			if idx >= len(originalLines) {
				return "", fmt.Errorf("diff context extends beyond the original's length")
			}
			result = append(result, originalLines[idx])
			idx++
		case line == "":
			continue
		default:
			result = append(result, line)
		}
	}
	for ; idx < len(originalLines); idx++ {
		result = append(result, originalLines[idx])
	}
	return strings.Join(result, "\n"), nil
}
