package toolexec

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ExecuteBatch runs invocations through ExecuteTool.
//
// Sequential mode runs them in order and stops at the first failure; later
// invocations never start. Parallel mode starts all of them at once and
// returns the first failure as soon as it is observed. In-flight siblings of
// a failed invocation are not cancelled; they run to completion in the
// background and their results are discarded. On success the results are in
// input order.
func (p *Pipeline) ExecuteBatch(ctx context.Context, invocations []Invocation, parallel bool) ([]any, error) {
	results := make([]any, len(invocations))
	if !parallel {
		for i, inv := range invocations {
			value, err := p.ExecuteTool(ctx, inv.Tool, inv.Args)
			if err != nil {
				return nil, err
			}
			results[i] = value
		}
		return results, nil
	}

	firstErr := make(chan error, 1)
	var g errgroup.Group
	for i, inv := range invocations {
		g.Go(func() error {
			value, err := p.ExecuteTool(ctx, inv.Tool, inv.Args)
			if err != nil {
				select {
				case firstErr <- err:
				default:
				}
				return err
			}
			results[i] = value
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case err := <-firstErr:
		return nil, err
	case <-done:
	}
	// A failure may land in firstErr just before done closes.
	select {
	case err := <-firstErr:
		return nil, err
	default:
		return results, nil
	}
}
