package builtin

import (
	"math"
	"strings"
	"time"

	pipeerrors "toolpipe/internal/errors"
)

func stringArg(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", pipeerrors.NewPermanent(nil, "Missing required argument %q", key)
		}
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", pipeerrors.NewPermanent(nil, "Argument %q must be a string, got %T", key, raw)
	}
	return value, nil
}

func intArg(args map[string]any, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, pipeerrors.NewPermanent(nil, "Argument %q must be a whole number", key)
		}
		return int(v), nil
	default:
		return 0, pipeerrors.NewPermanent(nil, "Argument %q must be a number, got %T", key, raw)
	}
}

// durationArg accepts a number of milliseconds or a Go duration string.
func durationArg(args map[string]any, key string) (time.Duration, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, pipeerrors.NewPermanent(nil, "Missing required argument %q", key)
	}
	if s, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, pipeerrors.NewPermanent(err, "Argument %q is not a duration: %v", key, err)
		}
		return d, nil
	}
	ms, err := intArg(args, key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
