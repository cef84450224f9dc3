// Package tools implements the closed set of Tool Instances (§4.3): one
// small state machine per tool kind, each built from a schema-validated
// input and a shared Collaborator handle, producing a ProviderToolResult
// at "done". Registration is a static map, not open-world dispatch,
// matching the "closed tagged variant" re-architecture note in §9.
package tools

import (
	"context"
	"reflect"

	"agentcore/common"
	"agentcore/content"
	"agentcore/env"
	"agentcore/permission"

	"github.com/invopop/jsonschema"
)

// Name is the closed set of tool kinds the registry knows how to build.
type Name string

const (
	NameGetFile         Name = "get_file"
	NameInsert          Name = "insert"
	NameReplace         Name = "replace"
	NameBashCommand     Name = "bash_command"
	NameFindReferences  Name = "find_references"
	NameHover           Name = "hover"
	NameDiagnostics     Name = "diagnostics"
	NameListBuffers     Name = "list_buffers"
	NameListDirectory   Name = "list_directory"
	NameQuickfix        Name = "quickfix"
	NameGitDiff         Name = "git-diff"
	NameStagedDiff      Name = "staged-diff"
	NameCompact         Name = "compact"
)

// Collaborator is the editor integration layer's contract (§1: out of
// scope, internals unspecified). Tools that query editor state call
// through this interface; the Thread supplies a concrete implementation.
type Collaborator interface {
	// FlushUnsavedChanges attempts to save an open buffer for path before
	// a tool overwrites it on disk. Returns ok=false if the buffer has
	// unsaved changes that could not be flushed (FileConflict).
	FlushUnsavedChanges(ctx context.Context, path string) (ok bool, err error)
	FindReferences(ctx context.Context, path string, line, character int) (string, error)
	Hover(ctx context.Context, path string, line, character int) (string, error)
	Diagnostics(ctx context.Context, path string) (string, error)
	ListBuffers(ctx context.Context) (string, error)
	Quickfix(ctx context.Context, path string, line, character int) (string, error)
}

// Registry builds tool instances for finalized tool_use blocks. It is the
// toolmanager.Factory adapter: one constructor per Name, everything else
// is a protocol error from an unknown tool name.
type Registry struct {
	env          env.Env
	gate         *permission.Gate
	collaborator Collaborator
	// onCompact is invoked instead of building an Instance when Name ==
	// compact; wired by the Thread to Agent.compact so the Tool Manager
	// never has to know that one tool kind is not an external effect.
	onCompact func(toolUseId, summary, fromCheckpoint, toCheckpoint string) content.Block
}

// NewRegistry constructs a Registry. onCompact may be nil until the
// Thread finishes wiring the Agent it will route compact calls to.
func NewRegistry(e env.Env, gate *permission.Gate, collaborator Collaborator, onCompact func(toolUseId, summary, from, to string) content.Block) *Registry {
	return &Registry{env: e, gate: gate, collaborator: collaborator, onCompact: onCompact}
}

// Build is a toolmanager.Factory: it dispatches on the tool_use block's
// name and constructs the matching Instance, pre-validated input already
// attached to request.ToolRequest by the Stream Assembler.
func (r *Registry) Build(threadID, messageID string, request content.Block) (Instance, error) {
	switch Name(request.ToolName) {
	case NameGetFile:
		return newGetFileTool(r.env, request), nil
	case NameInsert:
		return newEditTool(r.env, r.gate, r.collaborator, request, editKindInsert), nil
	case NameReplace:
		return newEditTool(r.env, r.gate, r.collaborator, request, editKindReplace), nil
	case NameBashCommand:
		return newBashTool(r.env, r.gate, request), nil
	case NameFindReferences:
		return newQueryTool(r.collaborator, request, queryKindFindReferences), nil
	case NameHover:
		return newQueryTool(r.collaborator, request, queryKindHover), nil
	case NameDiagnostics:
		return newQueryTool(r.collaborator, request, queryKindDiagnostics), nil
	case NameListBuffers:
		return newQueryTool(r.collaborator, request, queryKindListBuffers), nil
	case NameQuickfix:
		return newQueryTool(r.collaborator, request, queryKindQuickfix), nil
	case NameListDirectory:
		return newListDirectoryTool(r.env, request), nil
	case NameGitDiff:
		return newGitDiffTool(r.env, request, false), nil
	case NameStagedDiff:
		return newGitDiffTool(r.env, request, true), nil
	case NameCompact:
		return newCompactTool(request, r.onCompact), nil
	default:
		return nil, &UnknownToolError{ToolName: request.ToolName}
	}
}

// UnknownToolError is returned for a tool_use block naming a tool outside
// the closed registry set.
type UnknownToolError struct{ ToolName string }

func (e *UnknownToolError) Error() string { return "unknown tool: " + e.ToolName }

// Instance is re-exported from toolmanager's perspective: every tool in
// this package implements it directly rather than importing toolmanager,
// avoiding an import cycle (toolmanager.Factory returns this shape
// structurally).
type Instance interface {
	Run(ctx context.Context) content.Block
	Abort()
}

// Descriptors returns the common.Tool definitions (name, description,
// JSON Schema) for every tool kind, for inclusion in an outbound request.
func Descriptors() []*common.Tool {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	def := func(name, desc string, v any) *common.Tool {
		return &common.Tool{
			Name:           name,
			Description:    desc,
			Parameters:     reflector.Reflect(v),
			ParametersType: reflect.TypeOf(v),
		}
	}
	return []*common.Tool{
		def(string(NameGetFile), "Read a file's contents by path. Images and PDFs are returned as media blocks and are not added to persistent file context.", &GetFileInput{}),
		def(string(NameInsert), "Insert content into a file after the first occurrence of insert_after (empty string appends, creating the file if missing).", &InsertInput{}),
		def(string(NameReplace), "Replace the first occurrence of find with replace in a file (empty find replaces the whole file).", &ReplaceInput{}),
		def(string(NameBashCommand), "Run a shell command subject to the command allowlist, with a 60 second timeout.", &BashCommandInput{}),
		def(string(NameFindReferences), "Find references to the symbol at a file position.", &PositionQueryInput{}),
		def(string(NameHover), "Get hover information for the symbol at a file position.", &PositionQueryInput{}),
		def(string(NameDiagnostics), "Get diagnostics for a file.", &PathQueryInput{}),
		def(string(NameListBuffers), "List currently open editor buffers.", &struct{}{}),
		def(string(NameListDirectory), "List directory contents.", &PathQueryInput{}),
		def(string(NameQuickfix), "Get quickfix suggestions at a file position.", &PositionQueryInput{}),
		def(string(NameGitDiff), "Show the unstaged git diff.", &struct{}{}),
		def(string(NameStagedDiff), "Show the staged git diff.", &struct{}{}),
		def(string(NameCompact), "Summarize the conversation so far and request compaction.", &CompactInput{}),
	}
}

// StrictSchema rewrites a draft-07 schema into the strict subset some
// providers require (§6): every property folded into Required, with
// optionality instead recorded in the property's description text, since
// these providers reject a properties list with any optional member.
func StrictSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	out := *s
	if s.Properties == nil {
		return &out
	}

	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	var allNames []string
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name, propSchema := pair.Key, pair.Value
		allNames = append(allNames, name)
		if required[name] || propSchema == nil {
			continue
		}
		desc := propSchema.Description
		if desc != "" {
			desc += " "
		}
		propSchema.Description = desc + "(optional)"
	}
	out.Required = allNames
	return &out
}
