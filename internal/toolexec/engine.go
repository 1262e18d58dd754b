package toolexec

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"toolpipe/internal/async"
)

type attemptResult struct {
	value any
	err   error
}

// ExecuteTool runs one invocation of name. Steps short-circuit in order:
// lookup, dependency check, rate-limit admission, cache lookup, execution
// with retries. Only execution failures (including timeouts) are retried;
// once the budget is spent the last failure is returned wrapped in an
// *ExecutionError.
func (p *Pipeline) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	operationID := OperationID(name)
	entry, err := p.resolve(name)
	if err != nil {
		p.reject(ctx, operationID, RejectUnknownTool, err)
		return nil, err
	}
	if err := p.checkDependencies(entry); err != nil {
		p.reject(ctx, operationID, RejectMissingDependency, err)
		return nil, err
	}
	if err := p.limiter.Admit(name, entry.policy.RateLimit); err != nil {
		p.logger.Warn("%v", err)
		p.reject(ctx, operationID, RejectRateLimited, err)
		return nil, err
	}

	if entry.policy.Cache {
		if value, ok := p.cache.Lookup(name, args); ok {
			p.logger.Debug("cache hit for %s", name)
			if observer, ok := p.monitor.(CacheObserver); ok {
				observer.CacheHit(ctx, operationID)
			}
			return value, nil
		}
	}

	record := &InvocationRecord{
		ID:               uuid.NewString(),
		Tool:             name,
		Args:             args,
		StartedAt:        p.clock.Now(),
		RetriesRemaining: entry.policy.Retries,
	}

	opCtx := p.monitor.StartOperation(ctx, operationID)
	if opCtx == nil {
		opCtx = ctx
	}

	value, err := p.run(opCtx, entry, record)
	if err != nil {
		p.monitor.EndOperation(opCtx, operationID, OperationDetails{
			Success:  false,
			Retries:  record.RetriesRemaining,
			Attempts: record.Attempt,
			Error:    err.Error(),
		})
		p.logger.Error("tool %s failed after %d attempt(s): %v", name, record.Attempt, err)
		return nil, &ExecutionError{
			ToolName:     name,
			InvocationID: record.ID,
			Attempts:     record.Attempt,
			Err:          err,
		}
	}

	if entry.policy.Cache {
		p.cache.Store(name, entry.cacheGen, args, value)
	}
	p.monitor.EndOperation(opCtx, operationID, OperationDetails{
		Success:  true,
		Retries:  record.RetriesRemaining,
		Attempts: record.Attempt,
	})
	return value, nil
}

func (p *Pipeline) reject(ctx context.Context, operationID, reason string, err error) {
	if observer, ok := p.monitor.(RejectionObserver); ok {
		observer.Rejected(ctx, operationID, reason, err)
	}
}

// run performs attempts strictly one after another until one succeeds or the
// retry budget is spent. No backoff is applied between attempts.
func (p *Pipeline) run(ctx context.Context, entry *toolEntry, record *InvocationRecord) (any, error) {
	for {
		record.Attempt++
		value, err := p.attempt(ctx, entry, record.Args, record.Attempt)
		if err == nil {
			record.Success = true
			record.Err = nil
			return value, nil
		}
		record.Err = err

		if ctx.Err() != nil {
			return nil, err
		}
		if record.RetriesRemaining <= 0 {
			return nil, err
		}
		record.RetriesRemaining--
		p.logger.Warn("tool %s attempt %d failed, retrying (%d left): %v",
			record.Tool, record.Attempt, record.RetriesRemaining, err)
	}
}

// attempt races one execution against the policy timeout. The tool runs in
// its own goroutine and reports through a buffered channel, so a late
// completion after the timer fired is dropped without blocking and can never
// reach the caller or the cache.
func (p *Pipeline) attempt(ctx context.Context, entry *toolEntry, args map[string]any, attempt int) (any, error) {
	timeout := entry.policy.Timeout
	attemptCtx, cancel := context.WithTimeout(withAttempt(ctx, attempt), timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		var value any
		err := async.Safe(func() error {
			var execErr error
			value, execErr = entry.desc.Execute(attemptCtx, args)
			return execErr
		})
		done <- attemptResult{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timeoutErr := &TimeoutError{Tool: entry.desc.Name, Timeout: timeout, Attempt: attempt}
	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) &&
			ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// The tool honoured the attempt deadline before our timer fired.
			return nil, timeoutErr
		}
		return res.value, res.err
	case <-timer.C:
		return nil, timeoutErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
