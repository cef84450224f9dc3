package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentcore/agenterr"
	"agentcore/content"
	"agentcore/env"
)

type listDirectoryTool struct {
	env     env.Env
	request content.Block
}

func newListDirectoryTool(e env.Env, request content.Block) *listDirectoryTool {
	return &listDirectoryTool{env: e, request: request}
}

func (t *listDirectoryTool) Abort() {}

func (t *listDirectoryTool) Run(ctx context.Context) content.Block {
	path, _ := t.request.ToolRequest.Input["path"].(string)
	resolved := path
	if resolved == "" {
		resolved = t.env.GetWorkingDirectory()
	} else if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(t.env.GetWorkingDirectory(), resolved)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "could not list directory", err).Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{
		Type: content.BlockText,
		Text: strings.Join(names, "\n"),
	})
}
