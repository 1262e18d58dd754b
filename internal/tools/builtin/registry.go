// Package builtin provides the tools toolpipe registers out of the box.
package builtin

import (
	"fmt"

	"toolpipe/internal/config"
	"toolpipe/internal/toolexec"
)

// Entry pairs a tool with its default policy.
type Entry struct {
	Tool   toolexec.Tool
	Policy toolexec.Policy
}

// Entries returns every builtin tool with its default policy. runner is
// used by tools that call other tools.
func Entries(runner Runner) []Entry {
	return []Entry{
		{Tool: NewEcho(), Policy: echoPolicy()},
		{Tool: NewSleep(), Policy: sleepPolicy()},
		{Tool: NewClock(nil), Policy: clockPolicy()},
		{Tool: NewHTMLText(), Policy: htmlTextPolicy()},
		{Tool: NewTextDiff(), Policy: textDiffPolicy()},
		{Tool: NewDiffStats(runner), Policy: diffStatsPolicy()},
	}
}

// Register adds the builtin tools to p. Policies from cfg override the
// defaults and tools disabled in cfg are skipped. cfg may be nil.
func Register(p *toolexec.Pipeline, cfg *config.Config) ([]string, error) {
	var registered []string
	for _, entry := range Entries(p) {
		name := entry.Tool.Name()
		policy := entry.Policy
		if cfg != nil {
			if !cfg.ToolEnabled(name) {
				continue
			}
			policy = cfg.ApplyPolicy(name, policy)
		}
		if err := p.RegisterTool(entry.Tool, policy); err != nil {
			return registered, fmt.Errorf("register builtin %s: %w", name, err)
		}
		registered = append(registered, name)
	}
	return registered, nil
}
