package tools

import (
	"context"
	"strconv"
	"time"

	"agentcore/agenterr"
	"agentcore/content"
	"agentcore/env"
	"agentcore/permission"
)

const bashCommandTimeout = 60 * time.Second

// BashCommandInput is the bash_command tool's schema-validated input.
type BashCommandInput struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty" jsonschema_description:"(optional)"`
}

type bashTool struct {
	env     env.Env
	gate    *permission.Gate
	request content.Block
	cancel  context.CancelFunc
}

func newBashTool(e env.Env, gate *permission.Gate, request content.Block) *bashTool {
	return &bashTool{env: e, gate: gate, request: request}
}

func (t *bashTool) Abort() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *bashTool) Run(ctx context.Context) content.Block {
	input := t.request.ToolRequest.Input
	command, _ := input["command"].(string)
	if command == "" {
		return content.ToolResultErr(t.request.ToolUseId, "command is required")
	}
	var args []string
	if raw, ok := input["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}

	if t.gate != nil {
		full := command
		for _, a := range args {
			full += " " + a
		}
		switch t.gate.CanRun(full) {
		case permission.Deny:
			return content.ToolResultErr(t.request.ToolUseId, permission.ToolForbidden("run", full))
		case permission.RequireApproval:
			return content.ToolResultErr(t.request.ToolUseId, permission.ToolForbidden("run (requires approval)", full))
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, bashCommandTimeout)
	t.cancel = cancel
	defer cancel()

	output, err := t.env.RunCommand(timeoutCtx, env.EnvRunCommandInput{Command: command, Args: args})
	if err != nil {
		if timeoutCtx.Err() != nil {
			return content.ToolResultErr(t.request.ToolUseId, "bash_command timed out after 60s")
		}
		return content.ToolResultErr(t.request.ToolUseId, agenterr.Wrap(agenterr.KindTool, "bash_command failed to run", err).Error())
	}

	text := output.Stdout
	if output.Stderr != "" {
		text += "\n[stderr]\n" + output.Stderr
	}
	if output.ExitStatus != 0 {
		return content.ToolResultErr(t.request.ToolUseId, text+"\nexit status "+strconv.Itoa(output.ExitStatus))
	}
	return content.ToolResultOK(t.request.ToolUseId, content.ToolResultContent{Type: content.BlockText, Text: text})
}
