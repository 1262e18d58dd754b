package toolexec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateAndKeepsFirst(t *testing.T) {
	p := newTestPipeline(newFakeClock(), nil)

	first := Descriptor{Name: "dup", Description: "first", Execute: func(context.Context, map[string]any) (any, error) {
		return "first", nil
	}}
	second := Descriptor{Name: "dup", Description: "second", Execute: func(context.Context, map[string]any) (any, error) {
		return "second", nil
	}}

	require.NoError(t, p.Register(first, defaultPolicy))
	err := p.Register(second, defaultPolicy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTool)

	got, err := p.ExecuteTool(context.Background(), "dup", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestRegisterRejectsInvalidDescriptors(t *testing.T) {
	p := newTestPipeline(newFakeClock(), nil)
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }

	cases := []struct {
		name   string
		desc   Descriptor
		policy Policy
	}{
		{name: "empty name", desc: Descriptor{Name: "  ", Execute: noop}, policy: defaultPolicy},
		{name: "missing implementation", desc: Descriptor{Name: "x"}, policy: defaultPolicy},
		{name: "missing timeout", desc: Descriptor{Name: "x", Execute: noop}, policy: Policy{}},
		{name: "negative retries", desc: Descriptor{Name: "x", Execute: noop}, policy: Policy{Timeout: time.Second, Retries: -1}},
		{name: "negative rate limit", desc: Descriptor{Name: "x", Execute: noop}, policy: Policy{Timeout: time.Second, RateLimit: -1}},
		{name: "blank dependency", desc: Descriptor{Name: "x", Execute: noop}, policy: Policy{Timeout: time.Second, Dependencies: []string{""}}},
		{name: "padded name", desc: Descriptor{Name: " x ", Execute: noop}, policy: defaultPolicy},
		{name: "padded dependency", desc: Descriptor{Name: "x", Execute: noop}, policy: Policy{Timeout: time.Second, Dependencies: []string{"base "}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Register(tc.desc, tc.policy)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTool)
		})
	}
	assert.Empty(t, p.List(), "failed registrations must have no effect")

	err := p.RegisterTool(nil, defaultPolicy)
	assert.ErrorIs(t, err, ErrInvalidTool)
}

func TestUnregisterRemovesUsabilityAndBreaksDependents(t *testing.T) {
	p := newTestPipeline(newFakeClock(), nil)
	var baseCalls, dependentCalls atomic.Int32

	require.NoError(t, p.Register(countingTool("base", &baseCalls), defaultPolicy))
	require.NoError(t, p.Register(countingTool("dependent", &dependentCalls), Policy{
		Timeout:      time.Second,
		Dependencies: []string{"base"},
	}))

	_, err := p.ExecuteTool(context.Background(), "dependent", nil)
	require.NoError(t, err)

	require.NoError(t, p.Unregister("base"))
	assert.False(t, p.Has("base"))
	assert.True(t, p.Has("dependent"), "dependents are not removed")

	_, err = p.ExecuteTool(context.Background(), "base", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = p.ExecuteTool(context.Background(), "dependent", nil)
	var depErr *MissingDependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "base", depErr.Dependency)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "base")
	assert.EqualValues(t, 1, dependentCalls.Load(), "no execution after failed dependency check")

	err = p.Unregister("base")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestUnregisterClearsCacheAndRateState(t *testing.T) {
	clock := newFakeClock()
	p := newTestPipeline(clock, nil)
	var calls atomic.Int32
	policy := Policy{Timeout: time.Second, Cache: true, RateLimit: 1}

	require.NoError(t, p.Register(countingTool("cached", &calls), policy))
	_, err := p.ExecuteTool(context.Background(), "cached", map[string]any{"q": 1})
	require.NoError(t, err)

	require.NoError(t, p.Unregister("cached"))
	require.NoError(t, p.Register(countingTool("cached", &calls), policy))

	_, err = p.ExecuteTool(context.Background(), "cached", map[string]any{"q": 1})
	require.NoError(t, err, "rate window must not survive re-registration")
	assert.EqualValues(t, 2, calls.Load(), "cache must not survive re-registration")
}

func TestLateResultOfOldRegistrationIsNotCached(t *testing.T) {
	p := newTestPipeline(newFakeClock(), nil)
	policy := Policy{Timeout: 5 * time.Second, Cache: true}
	args := map[string]any{"q": 1}

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Register(Descriptor{Name: "tool", Execute: func(context.Context, map[string]any) (any, error) {
		close(started)
		<-release
		return "old", nil
	}}, policy))

	oldDone := make(chan any, 1)
	go func() {
		value, err := p.ExecuteTool(context.Background(), "tool", args)
		assert.NoError(t, err)
		oldDone <- value
	}()
	<-started

	require.NoError(t, p.Unregister("tool"))
	var calls atomic.Int32
	require.NoError(t, p.Register(Descriptor{Name: "tool", Execute: func(context.Context, map[string]any) (any, error) {
		calls.Add(1)
		return "new", nil
	}}, policy))

	close(release)
	assert.Equal(t, "old", <-oldDone, "the in-flight caller still gets its result")

	got, err := p.ExecuteTool(context.Background(), "tool", args)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.EqualValues(t, 1, calls.Load(), "the new registration must execute instead of hitting a stale entry")
}

func TestListDescribeAndStats(t *testing.T) {
	p := newTestPipeline(newFakeClock(), nil)
	var calls atomic.Int32

	require.NoError(t, p.Register(countingTool("zeta", &calls), defaultPolicy))
	require.NoError(t, p.Register(countingTool("alpha", &calls), Policy{
		Timeout:      time.Second,
		Cache:        true,
		RateLimit:    5,
		Dependencies: []string{"zeta"},
	}))

	list := p.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)

	_, policy, err := p.Describe("alpha")
	require.NoError(t, err)
	policy.Dependencies[0] = "mutated"
	_, again, err := p.Describe("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta"}, again.Dependencies, "Describe must return a copy")

	_, _, err = p.Describe("missing")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = p.ExecuteTool(context.Background(), "alpha", map[string]any{"a": 1})
	require.NoError(t, err)

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, ToolStats{Name: "alpha", CacheEnabled: true, CacheEntries: 1, RateLimit: 5, WindowCount: 1}, stats[0])
	assert.Equal(t, ToolStats{Name: "zeta"}, stats[1])

	require.NoError(t, p.ClearCache("alpha"))
	assert.Equal(t, 0, p.Stats()[0].CacheEntries)
	assert.True(t, errors.Is(p.ClearCache("missing"), ErrUnknownTool))
}
