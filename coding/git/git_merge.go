package git

import (
	"context"
	"fmt"
	"strings"

	"agentcore/env"
)

// MergeBranchParams configures a merge of SourceBranch into e's current
// branch. Collapsed from the teacher's squash/reverse-merge
// GitMergeActivity down to the single case this module needs: folding a
// finished thread's worktree branch back into the branch it forked from,
// with conflicts left in place for a human to resolve rather than
// auto-aborted.
type MergeBranchParams struct {
	SourceBranch   string
	CommitterName  string
	CommitterEmail string
}

// MergeBranch merges SourceBranch into e's current branch. A conflicting
// merge is reported as *MergeRejectedError rather than a plain error, so
// callers can distinguish "needs a human to resolve" from "git itself
// failed," and the conflicted working tree is left as-is for inspection.
func MergeBranch(ctx context.Context, e env.Env, params MergeBranchParams) error {
	if params.SourceBranch == "" {
		return fmt.Errorf("source branch is required for merge")
	}

	out, err := e.RunCommand(ctx, env.EnvRunCommandInput{
		Command: "git",
		Args:    []string{"merge", params.SourceBranch},
		EnvVars: buildGitEnvVars(params.CommitterName, params.CommitterEmail),
	})
	if err != nil {
		return fmt.Errorf("failed to execute git merge: %w", err)
	}
	if out.ExitStatus != 0 {
		if strings.Contains(out.Stdout, "CONFLICT") || strings.Contains(out.Stderr, "conflict") {
			return &MergeRejectedError{Message: strings.TrimSpace(out.Stdout + "\n" + out.Stderr)}
		}
		return fmt.Errorf("git merge failed: %s", out.Stderr)
	}
	return nil
}

func buildGitEnvVars(name, email string) []string {
	var vars []string
	if name != "" {
		vars = append(vars, "GIT_AUTHOR_NAME="+name, "GIT_COMMITTER_NAME="+name)
	}
	if email != "" {
		vars = append(vars, "GIT_AUTHOR_EMAIL="+email, "GIT_COMMITTER_EMAIL="+email)
	}
	return vars
}
