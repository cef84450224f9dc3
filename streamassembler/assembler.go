// Package streamassembler folds a sequence of provider-agnostic streaming
// events (agentcore/llm2.Event) into a growing content.Message, enforcing
// the block-assembly invariants from the specification's Stream Assembler
// component. It generalizes the fold llm2's providers each did inline
// (see llm2/anthropic_provider.go's accumulateAnthropicEventsToMessage) into
// a single strict, reusable state machine shared by every provider.
package streamassembler

import (
	"encoding/json"
	"fmt"

	"agentcore/agenterr"
	"agentcore/content"
	"agentcore/llm2"
)

// Assembler holds the in-flight streaming frame for one assistant turn.
// Not safe for concurrent use; the agent package serializes access to it
// on its single-actor scheduler (§5).
type Assembler struct {
	currentBlockIndex int
	blockOpen         bool
	currentBlock      *content.Block

	message   content.Message
	haveMsg   bool

	schemaValidator func(toolName string, input map[string]any) error
}

// New returns an assembler with no in-flight message. schemaValidator, if
// non-nil, is invoked on every finalized tool_use block's parsed input; a
// non-nil error demotes the block to request=err(raw_input) per §4.1
// without failing the whole turn (SchemaError is recoverable).
func New(schemaValidator func(toolName string, input map[string]any) error) *Assembler {
	return &Assembler{schemaValidator: schemaValidator}
}

// HasOpenBlock reports whether a block_start has been seen without a
// matching block_stop yet.
func (a *Assembler) HasOpenBlock() bool { return a.blockOpen }

// Message returns the assistant message assembled so far. Per invariant 4
// (lazy creation), this is the zero Message until the first block_stop.
func (a *Assembler) Message() content.Message { return a.message }

// HasMessage reports whether any block has been finalized into the
// message yet (invariant 4: a partial assistant message never appears in
// the log before its first completed block).
func (a *Assembler) HasMessage() bool { return a.haveMsg }

// Reset clears all streaming state, discarding any in-flight block. Used
// by Failure Cleanup and at the start of a new turn.
func (a *Assembler) Reset() {
	*a = Assembler{schemaValidator: a.schemaValidator}
}

// BlockStarted handles a block_start(index, block) event.
func (a *Assembler) BlockStarted(ev llm2.Event) error {
	if a.blockOpen {
		return agenterr.New(agenterr.KindProtocol, "block_start received while a block is already open")
	}
	var b content.Block
	if ev.ContentBlock != nil {
		b = blockFromWire(*ev.ContentBlock)
	}
	a.currentBlockIndex = ev.Index
	a.currentBlock = &b
	a.blockOpen = true
	return nil
}

// BlockDelta handles a block_delta(index, delta) event of any llm2 delta
// subtype (text_delta, summary_text_delta, signature_delta).
func (a *Assembler) BlockDelta(ev llm2.Event) error {
	if !a.blockOpen {
		return agenterr.New(agenterr.KindProtocol, "block_delta received with no open block")
	}
	if ev.Index != a.currentBlockIndex {
		return agenterr.New(agenterr.KindProtocol, fmt.Sprintf("block_delta index %d does not match open block index %d", ev.Index, a.currentBlockIndex))
	}

	b := a.currentBlock
	switch ev.Type {
	case llm2.EventTextDelta:
		switch b.Type {
		case content.BlockText, content.BlockSystemReminder, content.BlockContextUpdate:
			b.Text += ev.Delta
		case content.BlockThinking:
			b.Thinking += ev.Delta
		case content.BlockToolUse:
			b.ToolRequest.RawInput += ev.Delta
		}
	case llm2.EventSummaryTextDelta:
		if b.Type == content.BlockThinking {
			// Summary channel folds into the visible thinking text, distinct
			// from the private (often redacted) raw chain-of-thought.
			b.Thinking += ev.Delta
		}
	case llm2.EventSignatureDelta:
		b.Signature = string(append([]byte(b.Signature), ev.Signature...))
	case llm2.EventCitationsDelta:
		if b.Type != content.BlockText {
			return agenterr.New(agenterr.KindProtocol, "citations_delta targeting a non-text block")
		}
		for _, c := range ev.Citations {
			b.Citations = append(b.Citations, content.Citation{
				URL:        c.URL,
				Title:      c.Title,
				CitedText:  c.CitedText,
				StartIndex: c.StartIndex,
				EndIndex:   c.EndIndex,
			})
		}
	}
	return nil
}

// BlockStopped handles a block_stop(index) event: finalizes the current
// block, recognizes checkpoint/context_update/system_reminder text
// markers, validates tool_use input against its schema, and appends the
// block to the (lazily created) in-progress assistant message.
func (a *Assembler) BlockStopped(ev llm2.Event) error {
	if !a.blockOpen {
		return agenterr.New(agenterr.KindProtocol, "block_stop received with no open block")
	}
	if ev.Index != a.currentBlockIndex {
		return agenterr.New(agenterr.KindProtocol, fmt.Sprintf("block_stop index %d does not match open block index %d", ev.Index, a.currentBlockIndex))
	}

	b := *a.currentBlock
	a.blockOpen = false
	a.currentBlock = nil

	if b.Type == content.BlockToolUse {
		a.finalizeToolUse(&b)
	}
	if b.Type == content.BlockText {
		promoteMarkerBlock(&b)
	}

	if !a.haveMsg {
		a.message = content.Message{Role: content.RoleAssistant}
		a.haveMsg = true
	}
	a.message.Content = append(a.message.Content, b)
	return nil
}

// finalizeToolUse parses the accumulated JSON buffer and, if a validator
// was supplied, checks it against the tool's schema. On either failure the
// block is retained with request=err(raw_input) rather than dropped,
// matching §4.1 / error kind SchemaError (recoverable).
func (a *Assembler) finalizeToolUse(b *content.Block) {
	raw := b.ToolRequest.RawInput
	if raw == "" {
		raw = "{}"
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		b.ToolRequest = content.ToolRequest{RawInput: raw, Err: fmt.Sprintf("invalid tool input JSON: %v", err)}
		return
	}
	if a.schemaValidator != nil {
		if err := a.schemaValidator(b.ToolName, input); err != nil {
			b.ToolRequest = content.ToolRequest{RawInput: raw, Err: err.Error()}
			return
		}
	}
	b.ToolRequest = content.ToolRequest{Input: input}
}

// promoteMarkerBlock recognizes a finalized text block whose content
// matches a checkpoint, context_update, or system_reminder marker and
// rewrites its Type in place.
func promoteMarkerBlock(b *content.Block) {
	if id, ok := content.ParseCheckpointText(b.Text); ok {
		*b = content.Checkpoint(id)
		return
	}
	if isWrapped(b.Text, "<context_update>", "</context_update>") {
		b.Type = content.BlockContextUpdate
		return
	}
	if isWrapped(b.Text, "<system-reminder>", "</system-reminder>") {
		b.Type = content.BlockSystemReminder
		return
	}
}

func isWrapped(text, open, close string) bool {
	return len(text) >= len(open)+len(close) &&
		text[:len(open)] == open &&
		text[len(text)-len(close):] == close
}

// ResponseCompleted handles the terminal response_completed signal: the
// server's authoritative content array replaces our locally assembled
// content (§4.1, §9 open question -- "prefer server" is the mandated
// policy here), and stop reason/usage are recorded.
func (a *Assembler) ResponseCompleted(output content.Message, stopReason string, usage *content.Usage) content.Message {
	msg := output
	msg.Role = content.RoleAssistant
	msg.StopReason = stopReason
	msg.Usage = usage
	a.message = msg
	a.haveMsg = !msg.IsEmpty()
	a.blockOpen = false
	a.currentBlock = nil
	return msg
}

// blockFromWire maps an llm2.ContentBlock (as seen on block_started) to the
// richer content.Block tagged union. Only the minimally-populated shape
// needed at block_start is mapped here; deltas fill in the rest.
func blockFromWire(w llm2.ContentBlock) content.Block {
	switch w.Type {
	case llm2.ContentBlockTypeText:
		return content.Block{Type: content.BlockText}
	case llm2.ContentBlockTypeReasoning:
		return content.Block{Type: content.BlockThinking}
	case llm2.ContentBlockTypeRefusal:
		return content.Block{Type: content.BlockText}
	case llm2.ContentBlockTypeToolUse:
		b := content.Block{Type: content.BlockToolUse}
		if w.ToolUse != nil {
			b.ToolUseId = w.ToolUse.Id
			b.ToolName = w.ToolUse.Name
			b.ToolRequest.RawInput = w.ToolUse.Arguments
		}
		return b
	case llm2.ContentBlockTypeMcpCall:
		b := content.Block{Type: content.BlockServerToolUse}
		if w.McpCall != nil {
			b.ServerToolName = w.McpCall.Tool
			b.ServerToolInput = w.McpCall.Arguments
		}
		return b
	default:
		return content.Block{Type: content.BlockText}
	}
}
