// Package agent implements the Agent component (§4.2): it owns the
// message log and the in-flight streaming frame for one conversation,
// and exposes the append/continue/abort/tool-result/clone/compact
// operations the Thread orchestrates a turn with. It replaces the
// teacher's thin PerformAction actor stub with the full state machine the
// specification describes, built on the Stream Assembler and content
// packages.
package agent

import (
	"context"
	"fmt"
	"sync"

	"agentcore/agenterr"
	"agentcore/compactor"
	"agentcore/content"
	"agentcore/llm2"
	"agentcore/streamassembler"
)

// Status is the agent's totally-ordered state (§5): stopped -> streaming ->
// (stopped | error). Illegal transitions are ProtocolError.
type Status string

const (
	StatusStopped   Status = "stopped"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// StopReason mirrors the provider's terminal stop reasons plus the
// agent-local aborted reason (never sent by a provider).
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopPauseTurn    StopReason = "pause_turn"
	StopRefusal      StopReason = "refusal"
	StopContent      StopReason = "content"
	StopAborted      StopReason = "aborted"
)

// State is the externally-visible snapshot returned by GetState.
type State struct {
	Status         Status
	StopReason     StopReason
	Err            error
	Messages       []content.Message
	StreamingBlock *content.Block
	LatestUsage    *content.Usage
}

// Provider is the subset of llm2.Provider the agent drives a turn with,
// narrowed to keep this package's dependency on the wire layer minimal and
// explicit.
type Provider interface {
	Stream(ctx context.Context, options llm2.Options, eventChan chan<- llm2.Event) (*llm2.MessageResponse, error)
}

// SchemaValidator validates a tool_use block's parsed input against the
// named tool's JSON Schema; returns a descriptive error on mismatch.
type SchemaValidator func(toolName string, input map[string]any) error

// EventType is the closed set of async notifications the agent dispatches.
type EventType string

const (
	EventContentUpdated EventType = "content-updated"
	EventStopped        EventType = "stopped"
	EventErrored        EventType = "error"
)

// Event is dispatched to listeners, always asynchronously (§4.2, §5: one
// scheduler tick deferred) so synchronous callers never re-enter the agent
// from inside a notification.
type Event struct {
	Type       EventType
	StopReason StopReason
	Err        error
}

// Dispatcher delivers agent events off the calling goroutine. The default
// implementation posts onto a buffered channel drained by a background
// goroutine, giving the "post to self, deferred one tick" primitive §9
// calls for without reaching for a full actor-mailbox framework.
type Dispatcher interface {
	Dispatch(Event)
	Close()
}

// chanDispatcher is the default Dispatcher: a buffered channel plus one
// goroutine invoking listeners in arrival order. This mirrors the
// teacher's async-writer-goroutine shape used for non-blocking logging
// (logger.asyncWriter), applied here to observer notification instead.
type chanDispatcher struct {
	ch        chan Event
	listeners []func(Event)
	done      chan struct{}
}

func newChanDispatcher(listeners []func(Event)) *chanDispatcher {
	d := &chanDispatcher{
		ch:        make(chan Event, 64),
		listeners: listeners,
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *chanDispatcher) run() {
	for ev := range d.ch {
		for _, l := range d.listeners {
			l(ev)
		}
	}
	close(d.done)
}

func (d *chanDispatcher) Dispatch(ev Event) { d.ch <- ev }

func (d *chanDispatcher) Close() {
	close(d.ch)
	<-d.done
}

// Agent is the single-actor conversation owner described in §4.2 and §5.
// It is not safe for concurrent use from multiple goroutines; callers
// (the Thread) serialize all operations on it.
type Agent struct {
	mu sync.Mutex

	status     Status
	stopReason StopReason
	err        error

	messages []content.Message

	assembler *streamassembler.Assembler

	latestUsage *content.Usage

	provider   Provider
	validator  SchemaValidator
	dispatcher Dispatcher

	cancelStream context.CancelFunc
}

// New constructs a stopped agent ready to receive AppendUser.
func New(provider Provider, validator SchemaValidator, listeners ...func(Event)) *Agent {
	return &Agent{
		status:     StatusStopped,
		stopReason: StopEndTurn,
		assembler:  streamassembler.New(wrapValidator(validator)),
		provider:   provider,
		validator:  validator,
		dispatcher: newChanDispatcher(listeners),
	}
}

func wrapValidator(v SchemaValidator) func(string, map[string]any) error {
	if v == nil {
		return nil
	}
	return func(name string, input map[string]any) error { return v(name, input) }
}

func (a *Agent) dispatch(ev Event) {
	if a.dispatcher != nil {
		a.dispatcher.Dispatch(ev)
	}
}

// AppendUser appends one user message. Must be called when not streaming.
func (a *Agent) AppendUser(blocks []content.Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusStreaming {
		return agenterr.New(agenterr.KindProtocol, "append_user called while streaming")
	}
	a.appendOrCoalesce(content.Message{Role: content.RoleUser, Content: blocks})
	a.dispatch(Event{Type: EventContentUpdated})
	return nil
}

// ToolResult appends a tool_result into the last user message (or creates
// one), failing unless the agent is stopped with stop_reason=tool_use and
// the last assistant message has a matching unresolved tool_use id.
func (a *Agent) ToolResult(id string, payload content.ToolResultPayload) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusStopped || a.stopReason != StopToolUse {
		return agenterr.New(agenterr.KindProtocol, "tool_result called when agent is not stopped on tool_use")
	}
	if len(a.messages) == 0 {
		return agenterr.New(agenterr.KindProtocol, "tool_result called with empty message log")
	}
	last := a.messages[len(a.messages)-1]
	if last.Role != content.RoleAssistant {
		return agenterr.New(agenterr.KindProtocol, "tool_result called but last message is not assistant")
	}
	found := false
	for _, tid := range last.ToolUseIds() {
		if tid == id {
			found = true
			break
		}
	}
	if !found {
		return agenterr.New(agenterr.KindProtocol, fmt.Sprintf("no pending tool_use with id %s", id))
	}

	block := content.Block{Type: content.BlockToolResult, ToolResultId: id, ToolResult: payload}
	a.appendOrCoalesce(content.Message{Role: content.RoleUser, Content: []content.Block{block}})
	a.dispatch(Event{Type: EventContentUpdated})
	return nil
}

// appendOrCoalesce implements invariant 2 (alternation): adjacent messages
// with the same role are merged by concatenating their blocks. Caller
// holds a.mu.
func (a *Agent) appendOrCoalesce(m content.Message) {
	if n := len(a.messages); n > 0 && a.messages[n-1].Role == m.Role {
		a.messages[n-1].Content = append(a.messages[n-1].Content, m.Content...)
		if m.StopReason != "" {
			a.messages[n-1].StopReason = m.StopReason
		}
		if m.Usage != nil {
			a.messages[n-1].Usage = m.Usage
		}
		return
	}
	a.messages = append(a.messages, m)
}

// ContinueConversation starts a provider stream using the current message
// log. Must be called when not streaming; the last message must be user.
func (a *Agent) ContinueConversation(ctx context.Context, params llm2.Params, opts llm2.Options) error {
	a.mu.Lock()
	if a.status == StatusStreaming {
		a.mu.Unlock()
		return agenterr.New(agenterr.KindProtocol, "continue_conversation called while already streaming")
	}
	if len(a.messages) == 0 || a.messages[len(a.messages)-1].Role != content.RoleUser {
		a.mu.Unlock()
		return agenterr.New(agenterr.KindProtocol, "continue_conversation requires the last message to be user")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	a.cancelStream = cancel
	a.status = StatusStreaming
	a.assembler.Reset()
	a.mu.Unlock()

	opts.Params = params
	opts.Params.Messages = toWireMessages(a.snapshotMessages())

	eventChan := make(chan llm2.Event, 16)
	errCh := make(chan error, 1)
	respCh := make(chan *llm2.MessageResponse, 1)

	go func() {
		resp, err := a.provider.Stream(streamCtx, opts, eventChan)
		close(eventChan)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	for ev := range eventChan {
		var applyErr error
		switch ev.Type {
		case llm2.EventBlockStarted:
			applyErr = a.assembler.BlockStarted(ev)
		case llm2.EventBlockDone:
			applyErr = a.assembler.BlockStopped(ev)
		case llm2.EventTextDelta, llm2.EventSummaryTextDelta, llm2.EventSignatureDelta, llm2.EventCitationsDelta:
			applyErr = a.assembler.BlockDelta(ev)
		}
		if applyErr != nil {
			a.finishError(applyErr)
			return applyErr
		}
		a.dispatch(Event{Type: EventContentUpdated})
	}

	select {
	case err := <-errCh:
		if streamCtx.Err() != nil {
			a.finishAborted()
			return nil
		}
		a.finishStreamError(err)
		return nil
	case resp := <-respCh:
		a.finishCompleted(resp)
		return nil
	}
}

func (a *Agent) snapshotMessages() []content.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]content.Message, len(a.messages))
	for i, m := range a.messages {
		out[i] = m.Clone()
	}
	return out
}

func (a *Agent) finishCompleted(resp *llm2.MessageResponse) {
	a.mu.Lock()
	out := fromWireMessage(resp.Output)
	usage := &content.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	final := a.assembler.ResponseCompleted(out, resp.StopReason, usage)
	a.appendOrCoalesce(final)
	a.status = StatusStopped
	a.stopReason = StopReason(resp.StopReason)
	a.latestUsage = usage
	a.cancelStream = nil
	a.mu.Unlock()
	a.dispatch(Event{Type: EventStopped, StopReason: a.stopReason})
}

// finishAborted and finishStreamError both run Failure Cleanup (§4.2):
// inspect the last assistant message's last block and leave the log in a
// protocol-valid state before settling the terminal status.
func (a *Agent) finishAborted() {
	a.mu.Lock()
	a.runFailureCleanup()
	a.status = StatusStopped
	a.stopReason = StopAborted
	a.cancelStream = nil
	a.mu.Unlock()
	a.dispatch(Event{Type: EventStopped, StopReason: StopAborted})
}

func (a *Agent) finishStreamError(cause error) {
	a.mu.Lock()
	a.runFailureCleanup()
	a.status = StatusError
	a.err = agenterr.Wrap(agenterr.KindStream, "provider stream failed", cause)
	a.cancelStream = nil
	a.mu.Unlock()
	a.dispatch(Event{Type: EventErrored, Err: a.err})
}

func (a *Agent) finishError(cause error) {
	a.mu.Lock()
	a.status = StatusError
	a.err = cause
	a.cancelStream = nil
	a.mu.Unlock()
	a.dispatch(Event{Type: EventErrored, Err: cause})
}

// runFailureCleanup implements §4.2 Failure Cleanup. Caller holds a.mu.
func (a *Agent) runFailureCleanup() {
	msg := a.assembler.Message()
	if !a.assembler.HasMessage() || len(msg.Content) == 0 {
		return
	}
	last := &msg.Content[len(msg.Content)-1]
	switch last.Type {
	case content.BlockServerToolUse:
		msg.Content = msg.Content[:len(msg.Content)-1]
		if len(msg.Content) > 0 {
			a.appendOrCoalesce(msg)
		}
	case content.BlockToolUse:
		a.appendOrCoalesce(msg)
		a.appendOrCoalesce(content.Message{
			Role:    content.RoleUser,
			Content: []content.Block{content.ToolResultErr(last.ToolUseId, "the operation was aborted before the tool could execute")},
		})
	default:
		for len(msg.Content) > 0 {
			tail := msg.Content[len(msg.Content)-1]
			if tail.Type == content.BlockText && tail.Text == "" {
				msg.Content = msg.Content[:len(msg.Content)-1]
				continue
			}
			if tail.Type == content.BlockThinking && tail.Thinking == "" {
				msg.Content = msg.Content[:len(msg.Content)-1]
				continue
			}
			break
		}
		if len(msg.Content) > 0 {
			a.appendOrCoalesce(msg)
		}
	}
}

// Abort cancels the in-flight stream; Failure Cleanup runs once the
// provider goroutine settles (finishAborted, invoked from
// ContinueConversation's own goroutine once streamCtx.Err() is observed).
func (a *Agent) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusStreaming {
		return agenterr.New(agenterr.KindProtocol, "abort called while not streaming")
	}
	if a.cancelStream != nil {
		a.cancelStream()
	}
	return nil
}

// Truncate retains messages [0..=idx], dropping stop info for removed
// messages, and marks the agent stopped/end_turn.
func (a *Agent) Truncate(idx int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusStreaming {
		return agenterr.New(agenterr.KindProtocol, "truncate called while streaming")
	}
	if idx < -1 || idx >= len(a.messages) {
		return agenterr.New(agenterr.KindProtocol, "truncate index out of range")
	}
	a.messages = a.messages[:idx+1]
	a.status = StatusStopped
	a.stopReason = StopEndTurn
	a.err = nil
	return nil
}

// Clone produces a deep, independent copy whose status is forced to
// stopped/end_turn, per §4.7 Clone Semantics. listeners become the fresh
// dispatcher's listener set; no observers carry over from the source.
func (a *Agent) Clone(listeners ...func(Event)) (*Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusStreaming {
		return nil, agenterr.New(agenterr.KindProtocol, "clone called while streaming")
	}

	clone := &Agent{
		status:     StatusStopped,
		stopReason: StopEndTurn,
		assembler:  streamassembler.New(wrapValidator(a.validator)),
		provider:   a.provider,
		validator:  a.validator,
		dispatcher: newChanDispatcher(listeners),
	}
	clone.messages = make([]content.Message, len(a.messages))
	for i, m := range a.messages {
		clone.messages[i] = m.Clone()
	}
	if a.latestUsage != nil {
		u := *a.latestUsage
		clone.latestUsage = &u
	}

	if a.stopReason == StopToolUse && len(clone.messages) > 0 {
		last := clone.messages[len(clone.messages)-1]
		if last.Role == content.RoleAssistant {
			var synth []content.Block
			for _, tid := range last.ToolUseIds() {
				synth = append(synth, content.ToolResultErr(tid, "The thread was forked before the tool could execute."))
			}
			if len(synth) > 0 {
				clone.appendOrCoalesce(content.Message{Role: content.RoleUser, Content: synth})
			}
		}
	}
	return clone, nil
}

// GetState returns a snapshot of the agent's externally-visible state.
func (a *Agent) GetState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := State{
		Status:      a.status,
		StopReason:  a.stopReason,
		Err:         a.err,
		LatestUsage: a.latestUsage,
	}
	s.Messages = make([]content.Message, len(a.messages))
	for i, m := range a.messages {
		s.Messages[i] = m.Clone()
	}
	if a.assembler.HasOpenBlock() {
		b := a.assembler.Message()
		if len(b.Content) > 0 {
			blk := b.Content[len(b.Content)-1].Clone()
			s.StreamingBlock = &blk
		}
	}
	return s
}

// Messages returns the current canonical message log (deep copy).
func (a *Agent) Messages() []content.Message {
	return a.GetState().Messages
}

// Close releases the agent's dispatcher goroutine.
func (a *Agent) Close() {
	a.mu.Lock()
	d := a.dispatcher
	a.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

// ReplaceMessages is used exclusively by the compactor to install a
// rewritten log atomically, after which the agent is forced to
// stopped/end_turn per the compaction algorithm (§4.6 step 6).
func (a *Agent) ReplaceMessages(messages []content.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = messages
	a.status = StatusStopped
	a.stopReason = StopEndTurn
	a.err = nil
}

// Compact runs the Compactor over the current log (§4.6) and installs the
// result. truncateIdx, if non-nil, drops messages after that index before
// any replacement is applied.
func (a *Agent) Compact(replacements []compactor.Replacement, truncateIdx *int) error {
	a.mu.Lock()
	if a.status == StatusStreaming {
		a.mu.Unlock()
		return agenterr.New(agenterr.KindProtocol, "compact called while streaming")
	}
	messages := make([]content.Message, len(a.messages))
	for i, m := range a.messages {
		messages[i] = m.Clone()
	}
	a.mu.Unlock()

	rewritten := compactor.Compact(messages, replacements, truncateIdx)
	a.ReplaceMessages(rewritten)
	return nil
}
