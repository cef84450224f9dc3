package tools

import (
	"context"

	"agentcore/content"
)

// CompactInput is the compact tool's schema-validated input: a summary
// plus an optional checkpoint range to replace. The Tool Manager routes
// this tool directly to Agent.compact rather than invoking an external
// effect (§4.3).
type CompactInput struct {
	Summary string `json:"summary"`
	From    string `json:"from,omitempty" jsonschema_description:"(optional) checkpoint id to start the replaced range after"`
	To      string `json:"to,omitempty" jsonschema_description:"(optional) checkpoint id to end the replaced range at"`
}

type compactTool struct {
	request content.Block
	invoke  func(toolUseId, summary, from, to string) content.Block
}

func newCompactTool(request content.Block, invoke func(toolUseId, summary, from, to string) content.Block) *compactTool {
	return &compactTool{request: request, invoke: invoke}
}

func (t *compactTool) Abort() {}

func (t *compactTool) Run(ctx context.Context) content.Block {
	if t.invoke == nil {
		return content.ToolResultErr(t.request.ToolUseId, "compact is not wired to an agent")
	}
	input := t.request.ToolRequest.Input
	summary, _ := input["summary"].(string)
	from, _ := input["from"].(string)
	to, _ := input["to"].(string)
	return t.invoke(t.request.ToolUseId, summary, from, to)
}
