package agentrt

import (
	"context"
	"path/filepath"

	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/llm"
)

// CoderAgent applies each FileChange from Solution Designer: merge the
// declared change against the file's prior content, then write the result to
// disk with a backup. Every change is attempted even if an earlier one
// fails, so a partial run still reports a per-file result for each entry.
type CoderAgent struct {
	kind string
}

func NewCoderAgent() *CoderAgent { return &CoderAgent{kind: "coder"} }

func (a *CoderAgent) Kind() string { return a.kind }

func (a *CoderAgent) Run(ctx context.Context, rc Context, view configtree.Node, effective configtree.Node, deps Deps) (Data, Messages, llm.Metrics, error) {
	results := make([]CoderChangeResult, 0, len(rc.InputData.Changes))
	var totalMetrics llm.Metrics

	for _, change := range rc.InputData.Changes {
		result := a.applyChange(ctx, rc, change, deps)
		results = append(results, result)
	}

	return Data{CoderChanges: results}, Messages{}, totalMetrics, nil
}

func (a *CoderAgent) applyChange(ctx context.Context, rc Context, change FileChange, deps Deps) CoderChangeResult {
	absPath := change.FilePath
	if rc.ProjectPath != "" && !filepath.IsAbs(absPath) {
		absPath = filepath.Join(rc.ProjectPath, change.FilePath)
	}

	if change.Type == ChangeDelete {
		outcome, err := deps.Writer.Remove(ctx, absPath, true)
		deps.RecordSkillEvent(ctx, "merge", llm.Metrics{}, err)
		if err != nil {
			return CoderChangeResult{File: change.FilePath, Success: false, Error: err.Error()}
		}
		return CoderChangeResult{File: change.FilePath, Success: outcome.Success, BackupPath: outcome.BackupPath}
	}

	var original *string
	if prior, ok := rc.InputData.Files[change.FilePath]; ok {
		original = &prior
	}

	mergeOutcome, err := deps.Merger.Merge(ctx, collab.MergeRequest{
		FilePath:        change.FilePath,
		Type:            collab.ChangeType(change.Type),
		Content:         change.Content,
		Diff:            change.Diff,
		OriginalContent: original,
	})
	deps.RecordSkillEvent(ctx, "merge", llm.Metrics{}, err)
	if err != nil {
		return CoderChangeResult{File: change.FilePath, Success: false, Error: err.Error()}
	}
	if !mergeOutcome.Success {
		return CoderChangeResult{File: change.FilePath, Success: false, Error: mergeOutcome.Error}
	}

	writeOutcome, err := deps.Writer.Write(ctx, collab.WriteRequest{
		Path:         absPath,
		Content:      mergeOutcome.Content,
		CreateBackup: true,
	})
	if err != nil {
		return CoderChangeResult{File: change.FilePath, Success: false, Error: err.Error()}
	}

	return CoderChangeResult{File: change.FilePath, Success: writeOutcome.Success, BackupPath: writeOutcome.BackupPath}
}
