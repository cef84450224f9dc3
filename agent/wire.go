package agent

import (
	"encoding/json"

	"agentcore/content"
	"agentcore/llm2"
)

// toWireMessages converts the canonical conversation log into the
// provider-wire Message shape llm2.Options.Params.Messages expects.
// Marker blocks (checkpoint/system_reminder/context_update) round-trip as
// plain text carrying their marker syntax, exactly what
// streamassembler.promoteMarkerBlock recognizes on the way back in.
func toWireMessages(messages []content.Message) []llm2.Message {
	messages = applyCacheHint(messages)
	out := make([]llm2.Message, len(messages))
	for i, m := range messages {
		out[i] = llm2.Message{
			Role:    llm2.Role(m.Role),
			Content: make([]llm2.ContentBlock, 0, len(m.Content)),
		}
		for _, b := range m.Content {
			if wb, ok := blockToWire(b); ok {
				wb.CacheControl = b.CacheControl
				out[i].Content = append(out[i].Content, wb)
			}
		}
	}
	return out
}

// applyCacheHint implements the §6 cache-hint placement rule: walking the
// messages tail-to-head, the last block that is not thinking/
// redacted_thinking gets marked with the provider's ephemeral cache hint.
// A fresh slice (and fresh blocks) is returned; messages is never mutated.
func applyCacheHint(messages []content.Message) []content.Message {
	out := make([]content.Message, len(messages))
	marked := false
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		out[i] = m
		out[i].Content = append([]content.Block{}, m.Content...)
		if marked {
			continue
		}
		for j := len(out[i].Content) - 1; j >= 0; j-- {
			b := out[i].Content[j]
			if b.Type == content.BlockThinking || b.Type == content.BlockRedactedThinking {
				continue
			}
			out[i].Content[j].CacheControl = "ephemeral"
			marked = true
			break
		}
	}
	return out
}

func blockToWire(b content.Block) (llm2.ContentBlock, bool) {
	switch b.Type {
	case content.BlockText:
		return llm2.ContentBlock{Type: llm2.ContentBlockTypeText, Text: b.Text}, true

	case content.BlockCheckpoint:
		return llm2.ContentBlock{Type: llm2.ContentBlockTypeText, Text: content.SerializeCheckpoint(b.CheckpointId)}, true

	case content.BlockSystemReminder:
		return llm2.ContentBlock{Type: llm2.ContentBlockTypeText, Text: "<system-reminder>" + b.Text + "</system-reminder>"}, true

	case content.BlockContextUpdate:
		return llm2.ContentBlock{Type: llm2.ContentBlockTypeText, Text: "<context_update>" + b.Text + "</context_update>"}, true

	case content.BlockThinking:
		return llm2.ContentBlock{
			Type:      llm2.ContentBlockTypeReasoning,
			Reasoning: &llm2.ReasoningBlock{Text: b.Thinking, Signature: []byte(b.Signature)},
		}, true

	case content.BlockRedactedThinking:
		return llm2.ContentBlock{
			Type:      llm2.ContentBlockTypeReasoning,
			Reasoning: &llm2.ReasoningBlock{EncryptedContent: b.Data},
		}, true

	case content.BlockImage:
		return llm2.ContentBlock{
			Type:  llm2.ContentBlockTypeImage,
			Image: &llm2.ImageRef{Url: "data:" + b.MediaType + ";base64," + b.Base64},
		}, true

	case content.BlockDocument:
		return llm2.ContentBlock{
			Type: llm2.ContentBlockTypeFile,
			File: &llm2.FileRef{Url: "data:" + b.MediaType + ";base64," + b.Base64, MimeType: b.MediaType},
		}, true

	case content.BlockToolUse:
		return llm2.ContentBlock{
			Type: llm2.ContentBlockTypeToolUse,
			ToolUse: &llm2.ToolUseBlock{
				Id:        b.ToolUseId,
				Name:      b.ToolName,
				Arguments: toolRequestArguments(b.ToolRequest),
				Signature: []byte(b.Signature),
			},
		}, true

	case content.BlockToolResult:
		return llm2.ContentBlock{
			Type: llm2.ContentBlockTypeToolResult,
			ToolResult: &llm2.ToolResultBlock{
				ToolCallId: b.ToolResultId,
				IsError:    b.ToolResult.IsErr(),
				Text:       toolResultText(b.ToolResult),
			},
		}, true

	case content.BlockServerToolUse:
		return llm2.ContentBlock{
			Type:    llm2.ContentBlockTypeMcpCall,
			McpCall: &llm2.McpCallBlock{Tool: b.ServerToolName, Arguments: b.ServerToolInput},
		}, true

	case content.BlockWebSearchToolResult:
		return llm2.ContentBlock{
			Type: llm2.ContentBlockTypeToolResult,
			ToolResult: &llm2.ToolResultBlock{
				ToolCallId: b.WebSearchToolUseId,
				Text:       b.WebSearchContent,
			},
		}, true

	default:
		return llm2.ContentBlock{}, false
	}
}

func toolRequestArguments(r content.ToolRequest) string {
	if r.RawInput != "" {
		return r.RawInput
	}
	if r.Input == nil {
		return "{}"
	}
	raw, err := json.Marshal(r.Input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// toolResultText flattens a ToolResultPayload's content into the single
// text field the wire ToolResultBlock carries; non-text parts (image,
// document) are represented as a "[type: title]" placeholder since the wire
// result block has no room for inline binary payloads.
func toolResultText(p content.ToolResultPayload) string {
	if p.IsErr() {
		return p.Err
	}
	var text string
	for _, c := range p.Content {
		switch c.Type {
		case content.BlockText:
			text += c.Text
		default:
			text += "[" + string(c.Type) + ": " + c.Title + "]"
		}
	}
	return text
}

// fromWireMessage converts a completed provider response's output message
// back into the canonical content model. This is the server's
// authoritative content array (§4.1); it replaces, rather than merges
// with, whatever the Stream Assembler built up locally.
func fromWireMessage(m llm2.Message) content.Message {
	out := content.Message{Role: content.Role(m.Role)}
	for _, b := range m.Content {
		out.Content = append(out.Content, blockFromWireFinal(b))
	}
	return out
}

func blockFromWireFinal(b llm2.ContentBlock) content.Block {
	switch b.Type {
	case llm2.ContentBlockTypeText:
		if id, ok := content.ParseCheckpointText(b.Text); ok {
			return content.Checkpoint(id)
		}
		return content.Text(b.Text)

	case llm2.ContentBlockTypeReasoning:
		if b.Reasoning == nil {
			return content.Block{Type: content.BlockThinking}
		}
		if b.Reasoning.Text == "" && b.Reasoning.EncryptedContent != "" {
			return content.Block{Type: content.BlockRedactedThinking, Data: b.Reasoning.EncryptedContent}
		}
		return content.Block{
			Type:      content.BlockThinking,
			Thinking:  b.Reasoning.Text,
			Signature: string(b.Reasoning.Signature),
		}

	case llm2.ContentBlockTypeRefusal:
		reason := ""
		if b.Refusal != nil {
			reason = b.Refusal.Reason
		}
		return content.Text(reason)

	case llm2.ContentBlockTypeToolUse:
		blk := content.Block{Type: content.BlockToolUse}
		if b.ToolUse != nil {
			blk.ToolUseId = b.ToolUse.Id
			blk.ToolName = b.ToolUse.Name
			blk.Signature = string(b.ToolUse.Signature)
			var input map[string]any
			raw := b.ToolUse.Arguments
			if raw == "" {
				raw = "{}"
			}
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				blk.ToolRequest = content.ToolRequest{RawInput: raw, Err: "invalid tool input JSON: " + err.Error()}
			} else {
				blk.ToolRequest = content.ToolRequest{Input: input}
			}
		}
		return blk

	case llm2.ContentBlockTypeMcpCall:
		blk := content.Block{Type: content.BlockServerToolUse}
		if b.McpCall != nil {
			blk.ServerToolName = b.McpCall.Tool
			blk.ServerToolInput = b.McpCall.Arguments
		}
		return blk

	default:
		return content.Text(b.Text)
	}
}
