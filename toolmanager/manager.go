// Package toolmanager implements the Tool Manager (§4.4): it owns the
// live ToolRequestId -> ToolInstance map for a thread, starts each tool
// instance concurrently, and folds their results back in source order
// regardless of completion order. It generalizes the teacher's
// goroutine-per-unit-of-work plus WaitGroup/channel aggregation pattern
// (coding/unix/run_command_activity.go's subprocess wait) to an arbitrary
// closed set of tool kinds.
package toolmanager

import (
	"context"
	"sync"

	"agentcore/agenterr"
	"agentcore/content"
)

// Instance is a single tool invocation's state machine (§4.3).
type Instance interface {
	// Run executes the tool to completion (or abortion via ctx) and
	// returns the final ProviderToolResult. Run is called exactly once,
	// on its own goroutine, by the Manager.
	Run(ctx context.Context) content.Block
	// Abort requests early termination; Run's goroutine is still
	// responsible for observing ctx.Done() and returning.
	Abort()
}

// Factory builds a fresh Instance for one tool_use block. Implementations
// live in the tools package, keyed by ToolName.
type Factory func(threadID, messageID string, request content.Block) (Instance, error)

type entry struct {
	instance Instance
	cancel   context.CancelFunc
	done     chan content.Block
	result   *content.Block
}

// Manager owns the tool instances for one thread's lifetime. Not safe for
// concurrent use from multiple goroutines other than the instances'
// own worker goroutines, matching the single-actor scheduling model (§5).
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Init creates and starts a tool instance for request (a tool_use block),
// failing if its id is already present.
func (m *Manager) Init(ctx context.Context, factory Factory, threadID, messageID string, request content.Block) error {
	m.mu.Lock()
	if _, exists := m.entries[request.ToolUseId]; exists {
		m.mu.Unlock()
		return agenterr.New(agenterr.KindProtocol, "tool instance already initialized for id "+request.ToolUseId)
	}
	instance, err := factory(threadID, messageID, request)
	if err != nil {
		m.mu.Unlock()
		return agenterr.Wrap(agenterr.KindTool, "failed to construct tool instance", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{instance: instance, cancel: cancel, done: make(chan content.Block, 1)}
	m.entries[request.ToolUseId] = e
	m.mu.Unlock()

	go func() {
		result := instance.Run(runCtx)
		e.done <- result
	}()
	return nil
}

// Get returns a read-only view of the instance for id, for rendering.
func (m *Manager) Get(id string) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// AwaitCompletion blocks until every listed tool reaches done, then
// returns their tool_result blocks in the same order as ids (invariant 3:
// ordering), irrespective of completion order.
func (m *Manager) AwaitCompletion(ctx context.Context, ids []string) ([]content.Block, error) {
	entries := make([]*entry, len(ids))
	m.mu.Lock()
	for i, id := range ids {
		e, ok := m.entries[id]
		if !ok {
			m.mu.Unlock()
			return nil, agenterr.New(agenterr.KindProtocol, "await_completion on unknown tool id "+id)
		}
		entries[i] = e
	}
	m.mu.Unlock()

	results := make([]content.Block, len(ids))
	var wg sync.WaitGroup
	wg.Add(len(entries))
	for i, e := range entries {
		i, e := i, e
		go func() {
			defer wg.Done()
			if e.result != nil {
				results[i] = *e.result
				return
			}
			select {
			case r := <-e.done:
				e.result = &r
				results[i] = r
			case <-ctx.Done():
				results[i] = content.ToolResultErr(ids[i], "tool await cancelled")
			}
		}()
	}
	wg.Wait()
	return results, nil
}

// AbortAll transitions every not-yet-done instance to done{err("aborted")}.
func (m *Manager) AbortAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.cancel()
		e.instance.Abort()
	}
}

// Forget drops the listed tool instances (the Thread calls it once their
// results are delivered), so finished goroutine results are not kept
// referenced.
func (m *Manager) Forget(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
}
