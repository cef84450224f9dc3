package thread

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"agentcore/agent"
	"agentcore/coding/git"
	"agentcore/common"
	"agentcore/content"
	"agentcore/env"
	"agentcore/llm2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedResponseProvider struct {
	resp *llm2.MessageResponse
}

func (f fixedResponseProvider) Stream(ctx context.Context, opts llm2.Options, eventChan chan<- llm2.Event) (*llm2.MessageResponse, error) {
	return f.resp, nil
}

func TestParseCompactCommand_RecognizesPrefixAndTrimsSummary(t *testing.T) {
	summary, ok := parseCompactCommand("@compact   the conversation so far discussed X")
	assert.True(t, ok)
	assert.Equal(t, "the conversation so far discussed X", summary)
}

func TestParseCompactCommand_BareCommandHasEmptySummary(t *testing.T) {
	summary, ok := parseCompactCommand("@compact")
	assert.True(t, ok)
	assert.Equal(t, "", summary)
}

func TestParseCompactCommand_OrdinaryTextIsNotACommand(t *testing.T) {
	_, ok := parseCompactCommand("please compact this")
	assert.False(t, ok)
}

func TestBuildUserBlocks_ChecklistOrderCheckpointFirst(t *testing.T) {
	th := &Thread{idGen: content.NewSequentialIDGenerator()}
	blocks := th.buildUserBlocks("hello", "ctx update", "reminder")
	assert.Len(t, blocks, 4)
	assert.Equal(t, content.BlockCheckpoint, blocks[0].Type)
	assert.Equal(t, content.BlockContextUpdate, blocks[1].Type)
	assert.Equal(t, content.BlockSystemReminder, blocks[2].Type)
	assert.Equal(t, content.BlockText, blocks[3].Type)
	assert.Equal(t, "hello", blocks[3].Text)
}

func TestBuildUserBlocks_OmitsEmptyOptionalBlocks(t *testing.T) {
	th := &Thread{idGen: content.NewSequentialIDGenerator()}
	blocks := th.buildUserBlocks("hello", "", "")
	assert.Len(t, blocks, 2)
	assert.Equal(t, content.BlockCheckpoint, blocks[0].Type)
	assert.Equal(t, content.BlockText, blocks[1].Type)
}

func TestLastAssistantToolUses_ReturnsBlocksInSourceOrder(t *testing.T) {
	messages := []content.Message{
		{Role: content.RoleUser, Content: []content.Block{content.Text("hi")}},
		{Role: content.RoleAssistant, Content: []content.Block{
			content.Text("thinking out loud"),
			content.ToolUse("t1", "get_file", nil),
			content.ToolUse("t2", "run_command", nil),
		}},
	}
	uses := lastAssistantToolUses(messages)
	assert.Len(t, uses, 2)
	assert.Equal(t, "t1", uses[0].ToolUseId)
	assert.Equal(t, "t2", uses[1].ToolUseId)
}

func TestLastAssistantToolUses_NilWhenLastMessageIsUser(t *testing.T) {
	messages := []content.Message{
		{Role: content.RoleAssistant, Content: []content.Block{content.ToolUse("t1", "get_file", nil)}},
		{Role: content.RoleUser, Content: []content.Block{content.Text("thanks")}},
	}
	assert.Nil(t, lastAssistantToolUses(messages))
}

func TestLastAssistantToolUses_EmptyMessagesReturnsNil(t *testing.T) {
	assert.Nil(t, lastAssistantToolUses(nil))
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
}

func TestMergeWorktree_FoldsSourceBranchIntoCurrentBranch(t *testing.T) {
	repoDir := t.TempDir()
	runGit(t, repoDir, "init", "-b", "main")
	runGit(t, repoDir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "--allow-empty", "-m", "initial")
	runGit(t, repoDir, "checkout", "-b", "feature")
	runGit(t, repoDir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "--allow-empty", "-m", "feature work")
	runGit(t, repoDir, "checkout", "main")

	th := &Thread{env: &env.LocalEnv{WorkingDirectory: repoDir}}
	err := th.MergeWorktree(context.Background(), "feature", "Test", "test@example.com")
	require.NoError(t, err)

	logCmd := exec.Command("git", "log", "--oneline", "main")
	logCmd.Dir = repoDir
	out, err := logCmd.CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "feature work")
}

func TestMergeWorktree_ConflictSurfacesAsMergeRejectedError(t *testing.T) {
	repoDir := t.TempDir()
	writeFile := func(contents string) {
		require.NoError(t, os.WriteFile(filepath.Join(repoDir, "a.txt"), []byte(contents), 0644))
	}

	runGit(t, repoDir, "init", "-b", "main")
	writeFile("base")
	runGit(t, repoDir, "add", "a.txt")
	runGit(t, repoDir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "-m", "base")

	runGit(t, repoDir, "checkout", "-b", "feature")
	writeFile("feature change")
	runGit(t, repoDir, "add", "a.txt")
	runGit(t, repoDir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "-m", "feature change")

	runGit(t, repoDir, "checkout", "main")
	writeFile("main change")
	runGit(t, repoDir, "add", "a.txt")
	runGit(t, repoDir, "-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "-m", "main change")

	th := &Thread{env: &env.LocalEnv{WorkingDirectory: repoDir}}
	err := th.MergeWorktree(context.Background(), "feature", "Test", "test@example.com")
	require.Error(t, err)
	var rejected *git.MergeRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestContextUsageRatio_ComputesFractionOfModelLimitFromLatestUsage(t *testing.T) {
	provider := fixedResponseProvider{resp: &llm2.MessageResponse{
		Output:     llm2.Message{Role: llm2.Role(content.RoleAssistant), Content: []llm2.ContentBlock{{Type: llm2.ContentBlockTypeText, Text: "ok"}}},
		StopReason: string(agent.StopEndTurn),
		Usage:      llm2.Usage{InputTokens: 1000, OutputTokens: 500},
	}}

	th := New("th1", Config{
		Provider: provider,
		Params:   llm2.Params{ModelConfig: common.ModelConfig{Provider: "does-not-exist", Model: "does-not-exist"}},
	})
	_ = th.Agent().AppendUser([]content.Block{content.Text("hi")})
	require.NoError(t, th.runTurn(context.Background()))

	ratio := th.ContextUsageRatio()
	assert.InDelta(t, 1500.0/float64(common.DefaultContextLimitTokens), ratio, 0.0001)
	assert.False(t, th.ShouldCompact(0.99))
	assert.True(t, th.ShouldCompact(0.001))
}
