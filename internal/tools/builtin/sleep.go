package builtin

import (
	"context"
	"time"

	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/toolexec"
)

const sleepName = "sleep"

// sleepTool waits for the requested duration or until its context ends.
type sleepTool struct{}

// NewSleep creates the sleep tool.
func NewSleep() toolexec.Tool { return sleepTool{} }

func (sleepTool) Name() string { return sleepName }

func (sleepTool) Description() string {
	return "Waits for 'duration' (milliseconds or a duration string such as \"250ms\")."
}

func (sleepTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	d, err := durationArg(args, "duration")
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, pipeerrors.NewPermanent(nil, "Argument \"duration\" must not be negative")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"slept_ms": d.Milliseconds()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func sleepPolicy() toolexec.Policy {
	return toolexec.Policy{Timeout: 5 * time.Second}
}
