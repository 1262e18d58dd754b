// Package toolexec runs named tools on behalf of agents.
//
// A Pipeline owns a descriptor store, a per-tool rate limiter and a per-tool
// result cache. ExecuteTool drives one invocation through, in order:
//
//   - descriptor lookup
//   - dependency check
//   - rate-limit admission
//   - cache lookup
//   - bounded-time execution with retries
//   - cache store and monitor notification
//
// ExecuteBatch fans several invocations out either sequentially or
// concurrently. All pipeline state is safe for concurrent use.
package toolexec
