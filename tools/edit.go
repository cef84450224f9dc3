package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"agentcore/agenterr"
	"agentcore/content"
	"agentcore/env"
	"agentcore/permission"
)

type editKind int

const (
	editKindInsert editKind = iota
	editKindReplace
)

// InsertInput is the insert tool's schema-validated input.
type InsertInput struct {
	FilePath   string `json:"file_path"`
	InsertAfter string `json:"insert_after" jsonschema_description:"splice after the first occurrence of this string; empty string appends, creating the file if missing"`
	Content    string `json:"content"`
}

// ReplaceInput is the replace tool's schema-validated input.
type ReplaceInput struct {
	FilePath string `json:"file_path"`
	Find     string `json:"find" jsonschema_description:"first occurrence to replace; empty string replaces the whole file"`
	Replace  string `json:"replace"`
}

type editTool struct {
	env          env.Env
	gate         *permission.Gate
	collaborator Collaborator
	request      content.Block
	kind         editKind
}

func newEditTool(e env.Env, gate *permission.Gate, collaborator Collaborator, request content.Block, kind editKind) *editTool {
	return &editTool{env: e, gate: gate, collaborator: collaborator, request: request, kind: kind}
}

func (t *editTool) Abort() {}

func (t *editTool) Run(ctx context.Context) content.Block {
	input := t.request.ToolRequest.Input
	path, _ := input["file_path"].(string)
	if path == "" {
		return content.ToolResultErr(t.request.ToolUseId, "file_path is required")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(t.env.GetWorkingDirectory(), resolved)
	}

	if t.gate != nil {
		switch t.gate.CanWrite(resolved, false) {
		case permission.Deny:
			return content.ToolResultErr(t.request.ToolUseId, permission.ToolForbidden("write", path))
		case permission.RequireApproval:
			// A bare tool cannot itself block on user approval; the Thread
			// is responsible for transitioning to pending-user-action and
			// re-invoking once an explicit approval event arrives. Here we
			// surface the same denial a tool sees before that happens.
			return content.ToolResultErr(t.request.ToolUseId, permission.ToolForbidden("write (requires approval)", path))
		}
	}

	if t.collaborator != nil {
		if ok, err := t.collaborator.FlushUnsavedChanges(ctx, resolved); err != nil || !ok {
			msg := "could not flush unsaved editor changes before editing " + path
			if err != nil {
				msg = agenterr.Wrap(agenterr.KindFileConflict, msg, err).Error()
			}
			return content.ToolResultErr(t.request.ToolUseId, msg)
		}
	}

	existing, readErr := os.ReadFile(resolved)
	fileExists := readErr == nil
	if readErr != nil && !os.IsNotExist(readErr) {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "could not read file", readErr).Error())
	}

	var newContent string
	switch t.kind {
	case editKindInsert:
		insertAfter, _ := input["insert_after"].(string)
		toInsert, _ := input["content"].(string)
		if insertAfter == "" {
			newContent = string(existing) + toInsert
			break
		}
		idx := strings.Index(string(existing), insertAfter)
		if idx < 0 {
			return content.ToolResultErr(t.request.ToolUseId, "insert_after string not found in file")
		}
		splicePoint := idx + len(insertAfter)
		newContent = string(existing)[:splicePoint] + toInsert + string(existing)[splicePoint:]

	case editKindReplace:
		if !fileExists {
			return content.ToolResultErr(t.request.ToolUseId, "replace requires an existing file")
		}
		find, _ := input["find"].(string)
		replace, _ := input["replace"].(string)
		if find == "" {
			newContent = replace
			break
		}
		idx := strings.Index(string(existing), find)
		if idx < 0 {
			return content.ToolResultErr(t.request.ToolUseId, "find string not found in file")
		}
		newContent = string(existing)[:idx] + replace + string(existing)[idx+len(find):]
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "could not create parent directory", err).Error())
	}
	if err := os.WriteFile(resolved, []byte(newContent), 0644); err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "could not write file", err).Error())
	}

	return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{
		Type: content.BlockText,
		Text: "wrote " + path,
	})
}
