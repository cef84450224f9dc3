package tools

import (
	"context"

	"agentcore/agenterr"
	"agentcore/content"
)

type queryKind int

const (
	queryKindFindReferences queryKind = iota
	queryKindHover
	queryKindDiagnostics
	queryKindListBuffers
	queryKindQuickfix
)

// PositionQueryInput is shared by the editor-position-based query tools.
type PositionQueryInput struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

// PathQueryInput is shared by the path-only query tools.
type PathQueryInput struct {
	Path string `json:"path"`
}

// queryTool implements the pure, read-only editor queries (§4.3): they
// skip straight to done once the Collaborator answers, never touching
// the Permission Gate since they perform no mutation.
type queryTool struct {
	collaborator Collaborator
	request      content.Block
	kind         queryKind
}

func newQueryTool(collaborator Collaborator, request content.Block, kind queryKind) *queryTool {
	return &queryTool{collaborator: collaborator, request: request, kind: kind}
}

func (t *queryTool) Abort() {}

func (t *queryTool) Run(ctx context.Context) content.Block {
	if t.collaborator == nil {
		return content.ToolResultErr(t.request.ToolUseId, "editor collaborator unavailable")
	}
	input := t.request.ToolRequest.Input
	path, _ := input["path"].(string)
	line, _ := input["line"].(float64)
	character, _ := input["character"].(float64)

	var text string
	var err error
	switch t.kind {
	case queryKindFindReferences:
		text, err = t.collaborator.FindReferences(ctx, path, int(line), int(character))
	case queryKindHover:
		text, err = t.collaborator.Hover(ctx, path, int(line), int(character))
	case queryKindDiagnostics:
		text, err = t.collaborator.Diagnostics(ctx, path)
	case queryKindListBuffers:
		text, err = t.collaborator.ListBuffers(ctx)
	case queryKindQuickfix:
		text, err = t.collaborator.Quickfix(ctx, path, int(line), int(character))
	}
	if err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "editor query failed", err).Error())
	}
	return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{Type: content.BlockText, Text: text})
}
