package builtin

import (
	"context"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"toolpipe/internal/toolexec"
)

const textDiffName = "text_diff"

// textDiffTool compares two texts line by line.
type textDiffTool struct{}

// NewTextDiff creates the text_diff tool.
func NewTextDiff() toolexec.Tool { return textDiffTool{} }

func (textDiffTool) Name() string { return textDiffName }

func (textDiffTool) Description() string {
	return "Line diff between 'old' and 'new'. Returns the marked-up diff, a patch and added/deleted line counts."
}

func (textDiffTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	oldText, err := stringArg(args, "old", false)
	if err != nil {
		return nil, err
	}
	newText, err := stringArg(args, "new", false)
	if err != nil {
		return nil, err
	}

	if oldText == newText {
		return map[string]any{
			"identical": true,
			"diff":      "",
			"patch":     "",
			"added":     0,
			"deleted":   0,
		}, nil
	}

	dmp := diffmatchpatch.New()
	oldChars, newChars, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	added, deleted := 0, 0
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			prefix = "- "
			deleted += countLines(d.Text)
		}
		for _, line := range splitLines(d.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	patches := dmp.PatchMake(oldText, newText)
	return map[string]any{
		"identical": false,
		"diff":      out.String(),
		"patch":     dmp.PatchToText(patches),
		"added":     added,
		"deleted":   deleted,
	}, nil
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

func textDiffPolicy() toolexec.Policy {
	return toolexec.Policy{Timeout: 2 * time.Second, Cache: true}
}
