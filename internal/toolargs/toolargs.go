// Package toolargs turns user and model supplied text into tool arguments.
// Malformed JSON is repaired before it is rejected, since truncated or
// loosely quoted objects are common in model output.
package toolargs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/toolexec"
)

// ErrNotObject is returned when the arguments are valid JSON but not an object.
var ErrNotObject = errors.New("tool arguments must be a JSON object")

// Parse decodes raw into an argument map. Blank input yields an empty map.
func Parse(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var decoded any
	if err := decode(raw, &decoded); err != nil {
		return nil, pipeerrors.NewPermanent(err, "Invalid tool arguments: %v", err)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, pipeerrors.NewPermanent(ErrNotObject, "Invalid tool arguments: expected a JSON object")
	}
	return args, nil
}

// decode unmarshals raw, falling back to a repaired copy.
func decode(raw string, out any) error {
	err := json.Unmarshal([]byte(raw), out)
	if err == nil {
		return nil
	}
	fixed, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), out); err != nil {
		return fmt.Errorf("parse repaired arguments: %w", err)
	}
	return nil
}

// ParsePairs decodes key=value pairs. A value that is valid JSON (number,
// bool, null, array, object, quoted string) keeps its JSON type; anything
// else is taken as a plain string.
func ParsePairs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, pipeerrors.NewPermanent(nil, "Invalid argument %q: expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
		} else {
			args[key] = value
		}
	}
	return args, nil
}

// Merge returns base overlaid with override; neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Keys returns the argument names in sorted order.
func Keys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// batchItem is one entry of a batch file.
type batchItem struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ParseBatch decodes a JSON array of {"tool": ..., "args": {...}} objects.
func ParseBatch(raw []byte) ([]toolexec.Invocation, error) {
	var items []batchItem
	if err := decode(strings.TrimSpace(string(raw)), &items); err != nil {
		return nil, pipeerrors.NewPermanent(err, "Invalid batch: %v", err)
	}
	invocations := make([]toolexec.Invocation, 0, len(items))
	for i, item := range items {
		name := strings.TrimSpace(item.Tool)
		if name == "" {
			return nil, pipeerrors.NewPermanent(nil, "Invalid batch: entry %d has no tool name", i)
		}
		args := item.Args
		if args == nil {
			args = map[string]any{}
		}
		invocations = append(invocations, toolexec.Invocation{Tool: name, Args: args})
	}
	return invocations, nil
}
