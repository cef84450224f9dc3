package tools

import (
	"context"
	"fmt"
	"strings"

	"agentcore/agenterr"
	"agentcore/coding/diffanalysis"
	"agentcore/content"
	"agentcore/env"
)

type gitDiffTool struct {
	env     env.Env
	request content.Block
	staged  bool
}

func newGitDiffTool(e env.Env, request content.Block, staged bool) *gitDiffTool {
	return &gitDiffTool{env: e, request: request, staged: staged}
}

func (t *gitDiffTool) Abort() {}

func (t *gitDiffTool) Run(ctx context.Context) content.Block {
	args := []string{"diff"}
	if t.staged {
		args = append(args, "--staged")
	}
	output, err := t.env.RunCommand(ctx, env.EnvRunCommandInput{Command: "git", Args: args})
	if err != nil {
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "git diff failed", err).Error())
	}
	if output.ExitStatus != 0 {
		return content.ToolResultErr(t.request.ToolUseId, "git diff exited non-zero: "+output.Stderr)
	}

	text := output.Stdout
	if summary := t.symbolDeltaSummary(ctx, output.Stdout); summary != "" {
		text = text + "\n\n" + summary
	}
	return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{Type: content.BlockText, Text: text})
}

// symbolDeltaSummary enriches the raw diff with a per-file symbol delta
// (added/removed/changed top-level symbols), computed by reconstructing
// each file's old content from the patch and comparing it against the
// current working-tree content via tree-sitter symbol extraction. Files
// that are binary, deleted, or written in an unsupported language are
// silently skipped; this is a best-effort enrichment, not a requirement
// of the diff itself.
func (t *gitDiffTool) symbolDeltaSummary(ctx context.Context, diff string) string {
	fileDiffs, err := diffanalysis.ParseUnifiedDiff(diff)
	if err != nil {
		return ""
	}

	var lines []string
	for _, fd := range fileDiffs {
		if fd.IsBinary || fd.IsDeleted || fd.NewPath == "" {
			continue
		}
		out, err := t.env.RunCommand(ctx, env.EnvRunCommandInput{Command: "cat", Args: []string{fd.NewPath}})
		if err != nil || out.ExitStatus != 0 {
			continue
		}
		delta, err := diffanalysis.GetSymbolDelta(fd, out.Stdout)
		if err != nil {
			continue
		}
		if len(delta.AddedSymbols) == 0 && len(delta.RemovedSymbols) == 0 && len(delta.ChangedSymbols) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: +%v -%v ~%v", fd.NewPath, delta.AddedSymbols, delta.RemovedSymbols, delta.ChangedSymbols))
	}
	if len(lines) == 0 {
		return ""
	}
	return "symbol changes:\n" + strings.Join(lines, "\n")
}
