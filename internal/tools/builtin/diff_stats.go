package builtin

import (
	"context"
	"fmt"
	"time"

	"toolpipe/internal/toolexec"
)

const diffStatsName = "diff_stats"

// Runner executes another registered tool through the pipeline.
type Runner interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// diffStatsTool summarizes a text_diff result. It declares text_diff as a
// dependency and runs it through the pipeline, so text_diff's own cache and
// rate limit apply.
type diffStatsTool struct {
	runner Runner
}

// NewDiffStats creates the diff_stats tool on top of runner.
func NewDiffStats(runner Runner) toolexec.Tool {
	return diffStatsTool{runner: runner}
}

func (diffStatsTool) Name() string { return diffStatsName }

func (diffStatsTool) Description() string {
	return "Counts added and deleted lines between 'old' and 'new' using text_diff."
}

func (t diffStatsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	oldText, err := stringArg(args, "old", false)
	if err != nil {
		return nil, err
	}
	newText, err := stringArg(args, "new", false)
	if err != nil {
		return nil, err
	}

	result, err := t.runner.ExecuteTool(ctx, textDiffName, map[string]any{"old": oldText, "new": newText})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", textDiffName, err)
	}
	diff, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result %T", textDiffName, result)
	}
	added, _ := diff["added"].(int)
	deleted, _ := diff["deleted"].(int)

	return map[string]any{
		"added":   added,
		"deleted": deleted,
		"changed": added+deleted > 0,
		"summary": fmt.Sprintf("+%d -%d", added, deleted),
	}, nil
}

func diffStatsPolicy() toolexec.Policy {
	return toolexec.Policy{
		Timeout:      3 * time.Second,
		Dependencies: []string{textDiffName},
	}
}
