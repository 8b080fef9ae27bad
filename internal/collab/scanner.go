// Package collab implements the external collaborators treated as
// black boxes at their interface: the project scanner, the diff/merge
// skill, and the asset writer. These are the simplest concrete
// implementations of their documented contracts, sufficient to make the
// rest of the system runnable and testable end to end without a real
// external scanner process or LLM-backed merge skill.
package collab

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ScanRequest is the project scanner's input: glob patterns to include and
// exclude, relative to the project root.
type ScanRequest struct {
	ProjectPath string
	InputPaths  []string
	Exclusions  []string
}

// Scanner emits a textual manifest of a project tree, treated as a black
// box returning {path -> content} once parsed.
type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (string, error)
}

// FilesystemScanner walks the project tree directly and renders the same
// "=== <path> ===" delimited textual stream a real scanner subprocess would
// emit, so Discovery's parsing logic is exercised identically either way.
type FilesystemScanner struct{}

func NewFilesystemScanner() *FilesystemScanner { return &FilesystemScanner{} }

func (s *FilesystemScanner) Scan(ctx context.Context, req ScanRequest) (string, error) {
	patterns := req.InputPaths
	if len(patterns) == 0 {
		patterns = []string{"**/*"}
	}

	var out strings.Builder
	seen := make(map[string]bool)

	err := filepath.WalkDir(req.ProjectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(req.ProjectPath, path)
		if err != nil {
			return err
		}
		if seen[rel] {
			return nil
		}
		if !matchesAny(rel, patterns) || matchesAny(rel, req.Exclusions) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		seen[rel] = true
		out.WriteString(fmt.Sprintf("=== %s ===\n", rel))
		out.Write(content)
		out.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

func matchesAny(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, pat := range patterns {
		if pat == "**/*" {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// ParseManifest turns the scanner's "=== path ===" delimited stream into a
// native map<path, content>, per the design notes' guidance to parse the
// text-based format only at the boundary.
func ParseManifest(manifest string) map[string]string {
	files := make(map[string]string)
	var currentPath string
	var currentContent strings.Builder

	flush := func() {
		if currentPath != "" {
			files[currentPath] = strings.TrimRight(currentContent.String(), "\n")
		}
	}

	for _, line := range strings.Split(manifest, "\n") {
		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ===") {
			flush()
			currentPath = strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " ===")
			currentContent.Reset()
			continue
		}
		if currentPath != "" {
			currentContent.WriteString(line)
			currentContent.WriteString("\n")
		}
	}
	flush()
	return files
}
