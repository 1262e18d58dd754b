package toolexec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"toolpipe/internal/logging"
)

// Config wires a Pipeline. Zero values select the defaults.
type Config struct {
	Monitor         Monitor
	Logger          logging.Logger
	Clock           Clock
	CacheTTL        time.Duration
	CacheMaxEntries int
	RateWindow      time.Duration
}

type toolEntry struct {
	desc   Descriptor
	policy Policy
	// cacheGen is the result cache generation created for this registration.
	cacheGen uint64
}

// Pipeline is the tool execution pipeline. Construct it once with New and
// share the pointer; it is safe for concurrent use.
type Pipeline struct {
	mu    sync.RWMutex
	tools map[string]*toolEntry

	limiter *RateLimiter
	cache   *ResultCache
	monitor Monitor
	logger  logging.Logger
	clock   Clock
}

// New creates an empty pipeline.
func New(config Config) *Pipeline {
	clock := config.Clock
	if clock == nil {
		clock = SystemClock()
	}
	monitor := config.Monitor
	if monitor == nil {
		monitor = NopMonitor()
	}
	logger := config.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("toolexec")
	}
	return &Pipeline{
		tools:   make(map[string]*toolEntry),
		limiter: NewRateLimiter(config.RateWindow, clock),
		cache:   NewResultCache(config.CacheTTL, config.CacheMaxEntries, clock),
		monitor: monitor,
		logger:  logger,
		clock:   clock,
	}
}

// Register adds a tool under desc.Name. Registration is exclusive: a second
// registration of the same name fails with ErrDuplicateTool and leaves the
// first one intact. Names are matched exactly everywhere, so names with
// leading or trailing whitespace are rejected with ErrInvalidTool.
func (p *Pipeline) Register(desc Descriptor, policy Policy) error {
	if err := validate(desc, policy); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	gen := p.cache.Init(desc.Name)
	p.tools[desc.Name] = &toolEntry{desc: desc, policy: policy.clone(), cacheGen: gen}
	p.limiter.Reset(desc.Name)

	p.logger.Info("registered tool %s (timeout=%s cache=%t rate_limit=%d retries=%d deps=%v)",
		desc.Name, policy.Timeout, policy.Cache, policy.RateLimit, policy.Retries, policy.Dependencies)
	return nil
}

// RegisterTool is Register for Tool implementations.
func (p *Pipeline) RegisterTool(t Tool, policy Policy) error {
	return p.Register(FromTool(t), policy)
}

func validate(desc Descriptor, policy Policy) error {
	switch {
	case strings.TrimSpace(desc.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTool)
	case desc.Name != strings.TrimSpace(desc.Name):
		return fmt.Errorf("%w: name %q has surrounding whitespace", ErrInvalidTool, desc.Name)
	case desc.Execute == nil:
		return fmt.Errorf("%w: %s has no implementation", ErrInvalidTool, desc.Name)
	case policy.Timeout <= 0:
		return fmt.Errorf("%w: %s requires a positive timeout", ErrInvalidTool, desc.Name)
	case policy.Retries < 0:
		return fmt.Errorf("%w: %s retries must be >= 0", ErrInvalidTool, desc.Name)
	case policy.RateLimit < 0:
		return fmt.Errorf("%w: %s rate limit must be >= 0", ErrInvalidTool, desc.Name)
	}
	for _, dep := range policy.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("%w: %s declares an empty dependency", ErrInvalidTool, desc.Name)
		}
		if dep != strings.TrimSpace(dep) {
			return fmt.Errorf("%w: %s dependency %q has surrounding whitespace", ErrInvalidTool, desc.Name, dep)
		}
	}
	return nil
}

// Unregister removes a tool together with its cached results and rate-limit
// window. Tools depending on it stay registered and fail their next
// dependency check.
func (p *Pipeline) Unregister(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	delete(p.tools, name)
	p.cache.Drop(name)
	p.limiter.Reset(name)

	p.logger.Info("unregistered tool %s", name)
	return nil
}

// Has reports whether name is registered.
func (p *Pipeline) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.tools[name]
	return ok
}

// Describe returns the descriptor and policy registered under name.
func (p *Pipeline) Describe(name string) (Descriptor, Policy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.tools[name]
	if !ok {
		return Descriptor{}, Policy{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry.desc, entry.policy.clone(), nil
}

// List returns every registered descriptor sorted by name.
func (p *Pipeline) List() []Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Descriptor, 0, len(p.tools))
	for _, entry := range p.tools {
		out = append(out, entry.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClearCache drops every memoized result of name.
func (p *Pipeline) ClearCache(name string) error {
	if !p.Has(name) {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	p.cache.Clear(name)
	return nil
}

// ToolStats is a point-in-time view of a tool's pipeline state.
type ToolStats struct {
	Name         string `json:"name"`
	CacheEnabled bool   `json:"cache_enabled"`
	CacheEntries int    `json:"cache_entries"`
	RateLimit    int    `json:"rate_limit"`
	WindowCount  int    `json:"window_count"`
}

// Stats returns per-tool state sorted by name.
func (p *Pipeline) Stats() []ToolStats {
	p.mu.RLock()
	entries := make([]*toolEntry, 0, len(p.tools))
	for _, entry := range p.tools {
		entries = append(entries, entry)
	}
	p.mu.RUnlock()

	stats := make([]ToolStats, 0, len(entries))
	for _, entry := range entries {
		name := entry.desc.Name
		stats = append(stats, ToolStats{
			Name:         name,
			CacheEnabled: entry.policy.Cache,
			CacheEntries: p.cache.Len(name),
			RateLimit:    entry.policy.RateLimit,
			WindowCount:  p.limiter.Count(name),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func (p *Pipeline) resolve(name string) (*toolEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry, nil
}

// checkDependencies fails on the first declared dependency that is not
// currently registered.
func (p *Pipeline) checkDependencies(entry *toolEntry) error {
	if len(entry.policy.Dependencies) == 0 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, dep := range entry.policy.Dependencies {
		if _, ok := p.tools[dep]; !ok {
			return &MissingDependencyError{Tool: entry.desc.Name, Dependency: dep}
		}
	}
	return nil
}
