package builtin

import (
	"context"
	"time"

	"toolpipe/internal/toolexec"
)

const echoName = "echo"

// echoTool returns its arguments unchanged.
type echoTool struct{}

// NewEcho creates the echo tool.
func NewEcho() toolexec.Tool { return echoTool{} }

func (echoTool) Name() string { return echoName }

func (echoTool) Description() string {
	return "Returns the given arguments. With a single 'text' argument returns the text itself."
}

func (echoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if text, ok := args["text"].(string); ok && len(args) == 1 {
		return text, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out, nil
}

func echoPolicy() toolexec.Policy {
	return toolexec.Policy{Timeout: time.Second, Cache: true}
}
