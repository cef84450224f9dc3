// Package permission implements the Permission Gate (§4.8): a pure
// decision function over file writes and shell commands, with no I/O of
// its own. It is grounded on the teacher's coding/permission command
// extraction (github.com/smacker/go-tree-sitter bash grammar) and the
// gitignore oracle already built in common/walk_directory.go
// (github.com/denormal/go-gitignore indirectly, via common.IgnoreManager).
package permission

import (
	"strings"

	"agentcore/coding/permission"
	"agentcore/utils"
)

// fuzzyAllowlistThreshold is the minimum similarity score (per
// utils.StringSimilarity, itself backed by github.com/adrg/strutil's
// Levenshtein metric) at which a command that doesn't literally prefix-match
// an allowlist entry is still treated as allowlisted. This exists for
// allowlist entries that differ from the run command by cosmetic spacing or
// quoting only; anything further apart still requires approval.
const fuzzyAllowlistThreshold = 0.92

// Decision is the closed set of outcomes the Gate can return.
type Decision string

const (
	Allow           Decision = "allow"
	RequireApproval Decision = "require-approval"
	Deny            Decision = "deny"
)

// WritePolicy governs whether a project root allows writes outright,
// requires approval, or denies them. Ignored paths (per the gitignore
// oracle) are always denied, whatever the policy.
type WritePolicy string

const (
	WritePolicyAllow           WritePolicy = "allow"
	WritePolicyRequireApproval WritePolicy = "require-approval"
	WritePolicyDeny            WritePolicy = "deny"
)

// GitignoreOracle reports whether a path is excluded by the project's
// ignore rules. common.IgnoreManager satisfies this.
type GitignoreOracle interface {
	IsIgnored(path string, isDir bool) bool
}

// Gate holds the inputs the pure decision functions are evaluated
// against: a shell command allowlist (prefix match), a gitignore oracle,
// and a per-root write policy. Construction may do I/O (building the
// ignore manager); the decision methods never do.
type Gate struct {
	commandAllowlist []string
	ignore           GitignoreOracle
	writePolicy      WritePolicy
}

// New constructs a Gate. ignore may be nil, in which case no path is ever
// considered ignored.
func New(commandAllowlist []string, ignore GitignoreOracle, writePolicy WritePolicy) *Gate {
	return &Gate{commandAllowlist: commandAllowlist, ignore: ignore, writePolicy: writePolicy}
}

// CanWrite decides whether path may be written to. It never touches the
// filesystem itself; callers pass isDir since the oracle's rules can
// differ for directories.
func (g *Gate) CanWrite(path string, isDir bool) Decision {
	if g.ignore != nil && g.ignore.IsIgnored(path, isDir) {
		return Deny
	}
	switch g.writePolicy {
	case WritePolicyAllow:
		return Allow
	case WritePolicyDeny:
		return Deny
	default:
		return RequireApproval
	}
}

// CanRun decides whether a shell command (and every sub-command it
// expands to, via tree-sitter command extraction) is covered by the
// allowlist. A single disallowed sub-command demotes the whole decision;
// Deny never downgrades to RequireApproval.
func (g *Gate) CanRun(script string) Decision {
	commands := permission.ExtractCommands(script)
	if len(commands) == 0 {
		commands = []string{script}
	}
	decision := Allow
	for _, cmd := range commands {
		if !g.allowlisted(cmd) {
			decision = RequireApproval
		}
	}
	return decision
}

func (g *Gate) allowlisted(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	for _, prefix := range g.commandAllowlist {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	// Fall back to fuzzy matching against the full allowlist entries, so
	// an allowlisted command doesn't fall out of coverage over a stray
	// space or quoting difference.
	for _, entry := range g.commandAllowlist {
		if utils.StringSimilarity(trimmed, entry) >= fuzzyAllowlistThreshold {
			return true
		}
	}
	return false
}

// ToolForbidden renders a PermissionDenied-kind message for a tool result,
// matching the §7 error-kind table's "specific message" requirement.
func ToolForbidden(action, path string) string {
	return "permission denied: " + action + " " + path
}
