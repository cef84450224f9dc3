// Package content is the canonical conversation data model for the agent
// core: a tagged-union content block, the message it lives in, and the
// invariants the rest of the module (stream assembler, agent, compactor)
// is written to preserve. It generalizes the block shape llm2 already
// streams off the wire providers into the richer variant set a full
// multi-turn, tool-using, compactable conversation needs.
package content

import "fmt"

// Role is either user or assistant. System prompts are carried out of band
// (see llm2.Params) rather than as a message role, matching how the
// upstream provider SDKs model it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType is the closed set of content block variants. New block kinds
// are added here, never by embedding an open interface{} payload.
type BlockType string

const (
	BlockText                 BlockType = "text"
	BlockThinking             BlockType = "thinking"
	BlockRedactedThinking     BlockType = "redacted_thinking"
	BlockImage                BlockType = "image"
	BlockDocument             BlockType = "document"
	BlockToolUse              BlockType = "tool_use"
	BlockToolResult           BlockType = "tool_result"
	BlockServerToolUse        BlockType = "server_tool_use"
	BlockWebSearchToolResult  BlockType = "web_search_tool_result"
	BlockSystemReminder       BlockType = "system_reminder"
	BlockContextUpdate        BlockType = "context_update"
	BlockCheckpoint           BlockType = "checkpoint"
)

// ImageMediaType enumerates the accepted inline image encodings.
type ImageMediaType string

const (
	ImagePNG  ImageMediaType = "image/png"
	ImageJPEG ImageMediaType = "image/jpeg"
	ImageGIF  ImageMediaType = "image/gif"
	ImageWebP ImageMediaType = "image/webp"
)

// Citation references a span of text back to a web-search result.
type Citation struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	CitedText    string `json:"citedText,omitempty"`
	StartIndex   int    `json:"startIndex,omitempty"`
	EndIndex     int    `json:"endIndex,omitempty"`
}

// ToolRequest is the assistant's validated-or-not request payload inside a
// tool_use block: either the input parsed and schema-validated, or the raw
// accumulated JSON plus the validation failure.
type ToolRequest struct {
	Input    map[string]any `json:"input,omitempty"`
	RawInput string         `json:"rawInput,omitempty"`
	Err      string         `json:"err,omitempty"`
}

// OK reports whether the request validated successfully.
func (r ToolRequest) OK() bool { return r.Err == "" }

// ToolResultContent is one element of a tool_result's ok payload: text,
// image, or document, mirroring the block kinds a tool may emit back.
type ToolResultContent struct {
	Type     BlockType `json:"type"` // text | image | document
	Text     string    `json:"text,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	Base64   string    `json:"base64,omitempty"`
	Title    string    `json:"title,omitempty"`
}

// ToolResultPayload is the tool_result union: ok(content...) or err(message).
type ToolResultPayload struct {
	Content []ToolResultContent `json:"content,omitempty"`
	Err     string              `json:"err,omitempty"`
}

func (p ToolResultPayload) IsErr() bool { return p.Err != "" }

// Block is the tagged-union content block. Only the fields relevant to
// Type are populated; this mirrors the sum-type the spec describes while
// staying a plain Go struct (closed set, switch on Type everywhere).
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`

	// image / document
	MediaType string `json:"mediaType,omitempty"`
	Base64    string `json:"base64,omitempty"`
	Title     string `json:"title,omitempty"`

	// tool_use
	ToolUseId   string      `json:"toolUseId,omitempty"`
	ToolName    string      `json:"toolName,omitempty"`
	ToolRequest ToolRequest `json:"toolRequest,omitempty"`

	// tool_result
	ToolResultId string            `json:"toolResultId,omitempty"`
	ToolResult   ToolResultPayload `json:"toolResult,omitempty"`

	// server_tool_use / web_search_tool_result
	ServerToolUseId    string `json:"serverToolUseId,omitempty"`
	ServerToolName     string `json:"serverToolName,omitempty"` // "web_search"
	ServerToolInput    string `json:"serverToolInput,omitempty"`
	WebSearchToolUseId string `json:"webSearchToolUseId,omitempty"`
	WebSearchContent   string `json:"webSearchContent,omitempty"`

	// checkpoint
	CheckpointId string `json:"checkpointId,omitempty"`

	// cache hint, placed by the cache-control pass (§6); never serialized
	// as a distinct block, just a marker on whichever block it lands on.
	CacheControl string `json:"cacheControl,omitempty"`
}

// Text returns a plain text block.
func Text(text string) Block { return Block{Type: BlockText, Text: text} }

// Checkpoint returns a checkpoint marker block.
func Checkpoint(id string) Block { return Block{Type: BlockCheckpoint, CheckpointId: id} }

// SystemReminder returns an ephemeral injected-text block, stripped on compaction.
func SystemReminder(text string) Block { return Block{Type: BlockSystemReminder, Text: text} }

// ContextUpdate returns an auto-context block, stripped on compaction.
func ContextUpdate(text string) Block { return Block{Type: BlockContextUpdate, Text: text} }

// ToolUse returns a validated tool_use block.
func ToolUse(id, name string, input map[string]any) Block {
	return Block{
		Type:      BlockToolUse,
		ToolUseId: id,
		ToolName:  name,
		ToolRequest: ToolRequest{
			Input: input,
		},
	}
}

// ToolResultOK returns a successful tool_result block.
func ToolResultOK(id string, content ...ToolResultContent) Block {
	return Block{
		Type:         BlockToolResult,
		ToolResultId: id,
		ToolResult:   ToolResultPayload{Content: content},
	}
}

// ToolResultErr returns a failed tool_result block.
func ToolResultErr(id, message string) Block {
	return Block{
		Type:         BlockToolResult,
		ToolResultId: id,
		ToolResult:   ToolResultPayload{Err: message},
	}
}

// Message is an ordered sequence of blocks under a role. Only assistant
// messages carry StopReason/Usage (invariant enforced by construction
// sites, not the type system, matching how the spec states it).
type Message struct {
	Role       Role     `json:"role"`
	Content    []Block  `json:"content"`
	StopReason string   `json:"stopReason,omitempty"`
	Usage      *Usage   `json:"usage,omitempty"`
}

// Usage mirrors llm2.Usage but lives in content so the agent package does
// not need to import the provider-wire package for its public state.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// ToolUseIds returns the ids of every tool_use block in the message, in
// source order.
func (m Message) ToolUseIds() []string {
	var ids []string
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			ids = append(ids, b.ToolUseId)
		}
	}
	return ids
}

// ToolResultIds returns the ids of every tool_result block in the message,
// in source order.
func (m Message) ToolResultIds() []string {
	var ids []string
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			ids = append(ids, b.ToolResultId)
		}
	}
	return ids
}

// IsEmpty reports whether the message has no content blocks.
func (m Message) IsEmpty() bool { return len(m.Content) == 0 }

// Clone returns a deep, independent copy of the message. Used by
// Agent.clone (§4.7) and the compactor, both of which must guarantee
// structural independence from the source log.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, StopReason: m.StopReason}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	out.Content = make([]Block, len(m.Content))
	for i, b := range m.Content {
		out.Content[i] = b.Clone()
	}
	return out
}

// Clone returns a deep copy of the block, including its slice/map fields.
func (b Block) Clone() Block {
	out := b
	if b.Citations != nil {
		out.Citations = append([]Citation(nil), b.Citations...)
	}
	if b.ToolRequest.Input != nil {
		in := make(map[string]any, len(b.ToolRequest.Input))
		for k, v := range b.ToolRequest.Input {
			in[k] = v
		}
		out.ToolRequest.Input = in
	}
	if b.ToolResult.Content != nil {
		out.ToolResult.Content = append([]ToolResultContent(nil), b.ToolResult.Content...)
	}
	return out
}

func (t BlockType) String() string { return string(t) }

// ValidateNoRawString is a defensive check callable by provider adapters
// on ingest: content must always be a block sequence, never a bare string.
// Go's type system already forbids constructing Message.Content as a
// string, so this exists only to document invariant 6 at adapter
// boundaries that accept loosely-typed wire JSON before normalizing it.
func ValidateNoRawString(v any) error {
	switch v.(type) {
	case string:
		return fmt.Errorf("raw string content is not permitted; normalize to []Block first")
	default:
		return nil
	}
}
