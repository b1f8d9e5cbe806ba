package tools

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitobj "github.com/go-git/go-git/v5/plumbing/object"

	"github.com/aigent/aigent/internal/logger"
)

// isGitRepo mirrors the teacher's branch-detection probe: opening the repo
// is the cheapest reliable "is this a git repository" check.
func isGitRepo(workspaceRoot string) bool {
	_, err := git.PlainOpen(workspaceRoot)
	return err == nil
}

// autoCommit runs the equivalent of `git add -A && git commit -m msg`
// against workspaceRoot (spec §4.9 step 8). A commit failure is logged, not
// returned, per spec §7 ("Git commit failure | Yes — tool result still
// success | Logged only").
func autoCommit(workspaceRoot, toolName, detail string) {
	repo, err := git.PlainOpen(workspaceRoot)
	if err != nil {
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		logger.Warn("git auto-commit: worktree unavailable", "err", err)
		return
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		logger.Warn("git auto-commit: add failed", "err", err)
		return
	}

	status, err := wt.Status()
	if err == nil && status.IsClean() {
		return
	}

	msg := fmt.Sprintf("Aigent tool: %s — %s", toolName, detail)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &gitobj.Signature{
			Name:  "Aigent",
			Email: "aigent@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		logger.Warn("git auto-commit: commit failed", "err", err)
		return
	}
	logger.Info("git auto-commit", "tool", toolName)
}

// rollbackLast discards uncommitted changes and resets the worktree to HEAD,
// backing the git_rollback native tool.
func rollbackLast(workspaceRoot string) (string, error) {
	repo, err := git.PlainOpen(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.Reset(&git.ResetOptions{Commit: head.Hash(), Mode: git.HardReset}); err != nil {
		return "", err
	}
	return fmt.Sprintf("reset worktree to %s", head.Hash().String()[:12]), nil
}
