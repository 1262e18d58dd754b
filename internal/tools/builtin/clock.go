package builtin

import (
	"context"
	"time"
	_ "time/tzdata"

	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/toolexec"
)

const clockName = "clock"

// clockTool reports the current time, optionally in another zone.
type clockTool struct {
	now func() time.Time
}

// NewClock creates the clock tool; a nil now uses time.Now.
func NewClock(now func() time.Time) toolexec.Tool {
	if now == nil {
		now = time.Now
	}
	return clockTool{now: now}
}

func (clockTool) Name() string { return clockName }

func (clockTool) Description() string {
	return "Returns the current time. Optional 'timezone' takes an IANA name such as Europe/Berlin."
}

func (t clockTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	zone, err := stringArg(args, "timezone", false)
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, pipeerrors.NewPermanent(err, "Unknown timezone %q", zone)
		}
		now = now.In(loc)
	}
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"timezone": now.Location().String(),
	}, nil
}

func clockPolicy() toolexec.Policy {
	return toolexec.Policy{Timeout: time.Second, RateLimit: 60}
}
