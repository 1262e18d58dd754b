package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolpipe/internal/config"
	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/toolexec"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the command tree against configPath with args.
func runCLI(t *testing.T, configPath string, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func missingConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func decodeLines[T any](t *testing.T, out string) []T {
	t.Helper()
	var items []T
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var item T
		require.NoError(t, dec.Decode(&item))
		items = append(items, item)
	}
	return items
}

func TestToolsListJSON(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "tools", "list", "--json")
	require.NoError(t, res.err, res.stderr)

	var views []toolView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &views))

	names := make([]string, 0, len(views))
	byName := map[string]toolView{}
	for _, view := range views {
		names = append(names, view.Name)
		byName[view.Name] = view
	}
	assert.Equal(t, []string{"clock", "diff_stats", "echo", "html_text", "sleep", "text_diff"}, names)
	assert.Equal(t, []string{"text_diff"}, byName["diff_stats"].Dependencies)
	assert.True(t, byName["echo"].Cache)
	assert.Equal(t, int64(1000), byName["echo"].TimeoutMs)
}

func TestToolsListTable(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "tools", "list")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "NAME")
	assert.Contains(t, res.stdout, "diff_stats")
	assert.Contains(t, res.stdout, "unlimited")
}

func TestToolsListHonoursDisabledTools(t *testing.T) {
	path := writeConfig(t, "tools:\n  sleep:\n    disabled: true\n")
	res := runCLI(t, path, "", "tools", "list", "--json")
	require.NoError(t, res.err, res.stderr)
	assert.NotContains(t, res.stdout, `"sleep"`)
	assert.Contains(t, res.stdout, `"echo"`)
}

func TestToolsShow(t *testing.T) {
	path := writeConfig(t, "tools:\n  echo:\n    rate_limit: 7\n")
	res := runCLI(t, path, "", "tools", "show", "echo", "--json")
	require.NoError(t, res.err, res.stderr)

	var view toolView
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "echo", view.Name)
	assert.Equal(t, 7, view.RateLimit)
	assert.NotEmpty(t, view.Description)

	res = runCLI(t, path, "", "tools", "show", "echo")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "rate limit: 7")
}

func TestToolsShowUnknown(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "tools", "show", "nope")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, toolexec.ErrUnknownTool)
	assert.Equal(t, exitUsage, exitCode(res.err))
}

func TestToolsStats(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "tools", "stats", "--json")
	require.NoError(t, res.err, res.stderr)

	var stats []toolexec.ToolStats
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	require.Len(t, stats, 6)
	for _, s := range stats {
		assert.Zero(t, s.CacheEntries)
		assert.Zero(t, s.WindowCount)
	}
}

func TestRunPrintsResult(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "echo", "--arg", "text=hi")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "\"hi\"\n", res.stdout)
}

func TestRunMergesArgsAndPairs(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "echo", "--args", `{"a": 1, "b": "x"}`, "--arg", "b=2")
	require.NoError(t, res.err, res.stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, out)
}

func TestRunRepairsMalformedArgs(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "echo", "--args", `{"text": "hi"`)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "\"hi\"\n", res.stdout)
}

func TestRunRejectsNonObjectArgs(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "echo", "--args", `[1, 2]`)
	require.Error(t, res.err)
	assert.True(t, pipeerrors.IsPermanent(res.err))
	assert.Equal(t, exitUsage, exitCode(res.err))
}

func TestRunRateLimitedRepeat(t *testing.T) {
	path := writeConfig(t, "tools:\n  echo:\n    rate_limit: 1\n    cache: false\n")
	res := runCLI(t, path, "", "run", "echo", "--arg", "text=hi", "--repeat", "2", "--json")
	require.Error(t, res.err)
	assert.True(t, alreadyReported(res.err))
	assert.Equal(t, exitRateLimited, exitCode(res.err))

	results := decodeLines[runResult](t, res.stdout)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "hi", results[0].Result)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "Rate limit reached for echo")
}

func TestRunRepeatServedFromCache(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "echo", "--arg", "text=hi", "--repeat", "3", "--json")
	require.NoError(t, res.err, res.stderr)
	results := decodeLines[runResult](t, res.stdout)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, "hi", r.Result)
	}
}

func TestRunTimeoutExitCode(t *testing.T) {
	path := writeConfig(t, "tools:\n  sleep:\n    timeout_ms: 20\n")
	res := runCLI(t, path, "", "run", "sleep", "--arg", "duration=500")
	require.Error(t, res.err)
	assert.Equal(t, exitTimeout, exitCode(res.err))
	assert.Contains(t, res.stderr, "timed out")
}

func TestRunDependentTool(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "run", "diff_stats", "--args", `{"old": "a\nb\n", "new": "a\nc\n"}`)
	require.NoError(t, res.err, res.stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, float64(1), out["added"])
	assert.Equal(t, float64(1), out["deleted"])
}

func TestRunDependencyDisabled(t *testing.T) {
	path := writeConfig(t, "tools:\n  text_diff:\n    disabled: true\n")
	res := runCLI(t, path, "", "run", "diff_stats", "--args", `{"old": "a", "new": "b"}`)
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, toolexec.ErrMissingDependency)
	assert.Contains(t, res.stderr, "text_diff")
}

func TestBatchSequentialAndParallel(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "calls.json")
	require.NoError(t, os.WriteFile(file, []byte(`[
		{"tool": "echo", "args": {"text": "one"}},
		{"tool": "echo", "args": {"text": "two"}}
	]`), 0o600))

	for _, parallel := range []bool{false, true} {
		args := []string{"batch", "--file", file}
		if parallel {
			args = append(args, "--parallel")
		}
		res := runCLI(t, missingConfig(t), "", args...)
		require.NoError(t, res.err, res.stderr)

		var out batchOutput
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
		assert.True(t, out.Success)
		assert.Equal(t, parallel, out.Parallel)
		assert.Equal(t, []any{"one", "two"}, out.Results)
	}
}

func TestBatchFromStdinStopsAtFailure(t *testing.T) {
	stdin := `[{"tool": "echo", "args": {"text": "ok"}}, {"tool": "missing"}, {"tool": "echo"}]`
	res := runCLI(t, missingConfig(t), stdin, "batch", "--file", "-")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, toolexec.ErrUnknownTool)

	var out batchOutput
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestBatchRequiresFile(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "batch")
	require.Error(t, res.err)
}

func TestConfigInitShowPath(t *testing.T) {
	path := missingConfig(t)

	res := runCLI(t, path, "", "config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, path+"\n", res.stdout)

	res = runCLI(t, path, "", "config", "init")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Tools, "diff_stats")
	assert.Equal(t, []string{"text_diff"}, cfg.Tools["diff_stats"].Dependencies)
	require.NotNil(t, cfg.Tools["echo"].TimeoutMs)
	assert.Equal(t, 1000, *cfg.Tools["echo"].TimeoutMs)

	res = runCLI(t, path, "", "config", "init")
	require.Error(t, res.err)
	assert.Equal(t, exitUsage, exitCode(res.err))

	res = runCLI(t, path, "", "config", "init", "--force")
	require.NoError(t, res.err)

	res = runCLI(t, path, "", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "cache_ttl_ms")
	assert.Contains(t, res.stdout, "diff_stats")
}

func TestConfigShowEnvironmentOverride(t *testing.T) {
	t.Setenv("TOOLPIPE_LOG_FORMAT", "json")
	res := runCLI(t, missingConfig(t), "", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "format: json")
}

func TestConfigInvalidFile(t *testing.T) {
	path := writeConfig(t, "tools:\n  echo:\n    timeout_ms: 0\n")
	res := runCLI(t, path, "", "tools", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "tools.echo.timeout_ms")
}

func TestVersionJSON(t *testing.T) {
	res := runCLI(t, missingConfig(t), "", "version", "--json")
	require.NoError(t, res.err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeoutMs = 1000
	cfg.Observability.Logging.Level = "error"

	container, err := buildContainer(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer container.Cleanup(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, container, false) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, 9, exitCode(&ExitCodeError{Code: 9, Err: errors.New("x")}))
	assert.Equal(t, exitRateLimited, exitCode(&toolexec.RateLimitError{Tool: "t", Limit: 1}))
	assert.Equal(t, exitUsage, exitCode(toolexec.ErrUnknownTool))
}
