// Package thread implements the Thread component (§4.5): it owns a
// single Agent plus the per-turn orchestration that drives tool_use
// stop reasons through the Tool Manager and back into the Agent, and
// the fork/@compact entry points layered on top of Agent.Clone and
// Agent.Compact. It generalizes the teacher's dev package's
// LLM-loop-plus-tool-dispatch shape (dev/llm_loop.go, dev/handle_tool_call.go)
// to the specification's own turn algorithm, without the Temporal
// workflow coupling the teacher uses for durability.
package thread

import (
	"context"
	"strings"

	"agentcore/agent"
	"agentcore/agenterr"
	"agentcore/coding/git"
	"agentcore/common"
	"agentcore/compactor"
	"agentcore/content"
	"agentcore/env"
	"agentcore/llm2"
	"agentcore/permission"
	"agentcore/toolmanager"
	"agentcore/tools"

	"github.com/rs/zerolog"
)

// Config wires a Thread's collaborators. Provider/Validator are passed
// straight through to agent.New; Env/Gate/Collaborator build the tool
// Registry.
type Config struct {
	Provider     agent.Provider
	Validator    agent.SchemaValidator
	Env          env.Env
	Gate         *permission.Gate
	Collaborator tools.Collaborator
	Params       llm2.Params
	Options      llm2.Options
	IDGen        content.IDGenerator
	Log          zerolog.Logger
	// SystemPromptTemplate and SystemPromptData, if set, render into
	// Params.SystemPrefix at construction time (§9 Open Question
	// resolution: the system prefix is configuration, not a hidden
	// per-provider constant).
	SystemPromptTemplate string
	SystemPromptData     map[string]any
}

// Thread owns one Agent and the tool-execution loop around it.
type Thread struct {
	id       string
	ag       *agent.Agent
	toolMgr  *toolmanager.Manager
	registry *tools.Registry
	env      env.Env
	idGen    content.IDGenerator
	params   llm2.Params
	options  llm2.Options
	log      zerolog.Logger
}

// New constructs a Thread with a fresh Agent and Tool Manager.
func New(id string, cfg Config, listeners ...func(agent.Event)) *Thread {
	t := &Thread{
		id:      id,
		toolMgr: toolmanager.New(),
		env:     cfg.Env,
		idGen:   cfg.IDGen,
		params:  cfg.Params,
		options: cfg.Options,
		log:     cfg.Log.With().Str("thread_id", id).Logger(),
	}
	if t.idGen == nil {
		t.idGen = content.NewRandomIDGenerator(0)
	}
	if cfg.SystemPromptTemplate != "" {
		if prefix, err := llm2.RenderSystemPrefix(cfg.SystemPromptTemplate, cfg.SystemPromptData); err == nil {
			t.params.SystemPrefix = prefix
		} else {
			t.log.Warn().Err(err).Msg("failed to render system prompt template")
		}
	}
	t.registry = tools.NewRegistry(cfg.Env, cfg.Gate, cfg.Collaborator, t.runCompact)
	t.ag = agent.New(cfg.Provider, cfg.Validator, listeners...)
	return t
}

// Agent exposes the owned Agent for state inspection and Abort/GetState
// callers outside the turn loop.
func (t *Thread) Agent() *agent.Agent { return t.ag }

// SubmitUserText runs one full turn (§4.5 steps 1-7) for free-form user
// input, including the @compact command (step "@compact command").
// contextUpdate and systemReminder are optional auxiliary blocks injected
// alongside the checkpoint, per step 1; pass "" to omit either.
func (t *Thread) SubmitUserText(ctx context.Context, text, contextUpdate, systemReminder string) error {
	if summary, isCompact := parseCompactCommand(text); isCompact {
		return t.runCompactCommand(ctx, summary)
	}

	blocks := t.buildUserBlocks(text, contextUpdate, systemReminder)
	if err := t.ag.AppendUser(blocks); err != nil {
		return err
	}
	return t.runTurn(ctx)
}

// buildUserBlocks assembles one user message's blocks per §4.5 step 1-2: a
// fresh checkpoint first, then an optional context_update, an optional
// system_reminder, and finally the free text itself.
func (t *Thread) buildUserBlocks(text, contextUpdate, systemReminder string) []content.Block {
	blocks := []content.Block{content.Checkpoint(t.idGen.NextID())}
	if contextUpdate != "" {
		blocks = append(blocks, content.ContextUpdate(contextUpdate))
	}
	if systemReminder != "" {
		blocks = append(blocks, content.SystemReminder(systemReminder))
	}
	if text != "" {
		blocks = append(blocks, content.Text(text))
	}
	return blocks
}

// runTurn drives steps 3-7: continue the conversation, and while the
// agent stops on tool_use, run every requested tool concurrently and feed
// the results back in source order before continuing again.
func (t *Thread) runTurn(ctx context.Context) error {
	for {
		if err := t.ag.ContinueConversation(ctx, t.params, t.options); err != nil {
			return err
		}

		state := t.ag.GetState()
		switch state.Status {
		case agent.StatusError:
			return state.Err
		case agent.StatusStopped:
			if state.StopReason != agent.StopToolUse {
				return nil
			}
		default:
			return agenterr.New(agenterr.KindProtocol, "turn ended in an unexpected streaming state")
		}

		requests := lastAssistantToolUses(state.Messages)
		if len(requests) == 0 {
			return agenterr.New(agenterr.KindProtocol, "stopped on tool_use with no tool_use blocks present")
		}

		ids := make([]string, len(requests))
		for i, r := range requests {
			ids[i] = r.ToolUseId
			if err := t.toolMgr.Init(ctx, t.toolFactory, t.id, r.ToolUseId, r); err != nil {
				return err
			}
		}

		results, err := t.toolMgr.AwaitCompletion(ctx, ids)
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := t.ag.ToolResult(r.ToolResultId, r.ToolResult); err != nil {
				return err
			}
		}
		t.toolMgr.Forget(ids)
	}
}

// ContextUsageRatio returns the fraction of the model's context window the
// most recent turn's usage consumed, looked up via models.dev data
// (common.GetModelContextLimit). Returns 0 before any usage is recorded.
func (t *Thread) ContextUsageRatio() float64 {
	state := t.ag.GetState()
	if state.LatestUsage == nil {
		return 0
	}
	limit := common.GetModelContextLimit(t.params.Provider, t.params.Model)
	if limit <= 0 {
		return 0
	}
	used := state.LatestUsage.InputTokens + state.LatestUsage.OutputTokens
	return float64(used) / float64(limit)
}

// ShouldCompact reports whether the last turn's usage crossed threshold
// (e.g. 0.8) of the model's context window, a signal callers can use to
// trigger @compact proactively instead of waiting for a provider error.
func (t *Thread) ShouldCompact(threshold float64) bool {
	return t.ContextUsageRatio() >= threshold
}

func (t *Thread) toolFactory(threadID, messageID string, request content.Block) (toolmanager.Instance, error) {
	instance, err := t.registry.Build(threadID, messageID, request)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// runCompact is the onCompact callback handed to the tool Registry: the
// Tool Manager routes the compact tool_use here instead of running an
// external effect (§4.3, §4.6).
func (t *Thread) runCompact(toolUseId, summary, from, to string) content.Block {
	var fromPtr, toPtr *string
	if from != "" {
		fromPtr = &from
	}
	if to != "" {
		toPtr = &to
	}
	if err := t.ag.Compact([]compactor.Replacement{{From: fromPtr, To: toPtr, Summary: summary}}, nil); err != nil {
		return content.ToolResultErr(toolUseId, err.Error())
	}
	return content.ToolResultOK(toolUseId, content.ToolResultContent{Type: content.BlockText, Text: "conversation history compacted"})
}

// runCompactCommand implements the "@compact command" clause of §4.5: the
// truncate_idx is the last message index before this user message, and
// the summary is asked for out-of-band (out of scope here; callers of
// SubmitUserText with a precomputed summary reach this path directly).
func (t *Thread) runCompactCommand(ctx context.Context, summary string) error {
	state := t.ag.GetState()
	truncateIdx := len(state.Messages) - 1
	return t.ag.Compact([]compactor.Replacement{{Summary: summary}}, &truncateIdx)
}

func parseCompactCommand(text string) (summary string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "@compact") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "@compact")), true
}

// lastAssistantToolUses returns the tool_use blocks of the last message,
// in source order, or nil if it is not an assistant message.
func lastAssistantToolUses(messages []content.Message) []content.Block {
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	if last.Role != content.RoleAssistant {
		return nil
	}
	var out []content.Block
	for _, b := range last.Content {
		if b.Type == content.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Fork clones the owned Agent's whole conversation (synthesizing
// error tool_results for anything left unresolved, per Clone Semantics)
// and returns a new Thread sharing this one's tool wiring.
func (t *Thread) Fork(id string, listeners ...func(agent.Event)) (*Thread, error) {
	cloned, err := t.ag.Clone(listeners...)
	if err != nil {
		return nil, err
	}
	fork := &Thread{
		id:       id,
		ag:       cloned,
		toolMgr:  toolmanager.New(),
		registry: t.registry,
		env:      t.env,
		idGen:    t.idGen,
		params:   t.params,
		options:  t.options,
		log:      t.log.With().Str("forked_from", t.id).Logger(),
	}
	return fork, nil
}

// MergeWorktree folds sourceBranch into this Thread's environment's
// current branch, once the conversation it backs has finished. A
// conflicting merge surfaces as *git.MergeRejectedError, left in place
// for a human to resolve rather than silently aborted.
func (t *Thread) MergeWorktree(ctx context.Context, sourceBranch, committerName, committerEmail string) error {
	return git.MergeBranch(ctx, t.env, git.MergeBranchParams{
		SourceBranch:   sourceBranch,
		CommitterName:  committerName,
		CommitterEmail: committerEmail,
	})
}
