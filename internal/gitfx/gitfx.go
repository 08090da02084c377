package gitfx

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Exec is the real git.Effects implementation, shelling out to the git
// CLI. Merges into the main repository checkout (MergeWorktreeIntoBase)
// are serialized through mergeMu to avoid concurrent git index lock
// contention; worktree creation/removal and branch deletion do not take it.
type Exec struct {
	mergeMu sync.Mutex
	timeout time.Duration
}

// New returns an Exec effects implementation. timeout bounds every
// individual git invocation; zero means no timeout.
func New(timeout time.Duration) *Exec {
	return &Exec{timeout: timeout}
}

func (e *Exec) run(dir string, args ...string) (string, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("gitfx: git %s: %w (output: %s)", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

func (e *Exec) CreateWorktree(repoPath, worktreeDir, taskID, branch, baseBranch string) (*WorktreeInfo, error) {
	wtPath := filepath.Join(repoPath, worktreeDir, taskID)
	if _, err := e.run(repoPath, "worktree", "add", "-b", branch, wtPath, baseBranch); err != nil {
		return nil, err
	}
	head, err := e.HeadCommit(wtPath)
	if err != nil {
		return nil, err
	}
	return &WorktreeInfo{Path: wtPath, Branch: branch, TaskID: taskID, Head: head}, nil
}

func (e *Exec) HeadCommit(dir string) (string, error) {
	out, err := e.run(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// MergeBaseIntoWorktree brings baseBranch into the worktree without
// touching the main checkout. It checks for conflicts with `merge-tree
// --write-tree` first: a clean result is merged with `merge --no-ff`,
// while on a conflict a `merge --no-commit --no-ff` is started and its
// conflicted state is left in the worktree for ReadConflictBlobs.
func (e *Exec) MergeBaseIntoWorktree(worktreePath, baseBranch string) (*MergeOutcome, error) {
	out, err := e.run(worktreePath, "merge-tree", "--write-tree", "HEAD", baseBranch)
	if err != nil || strings.Contains(out, "CONFLICT") {
		conflicts := parseConflictFiles(out)
		if _, mergeErr := e.run(worktreePath, "merge", "--no-commit", "--no-ff", baseBranch); mergeErr != nil {
			// leave the conflicted merge state in place for ReadConflictBlobs
		}
		return &MergeOutcome{Merged: false, ConflictFiles: conflicts}, nil
	}

	if _, err := e.run(worktreePath, "merge", "--no-ff", baseBranch); err != nil {
		return nil, err
	}
	return &MergeOutcome{Merged: true}, nil
}

func parseConflictFiles(output string) []string {
	var conflicts []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "CONFLICT") && strings.Contains(line, " in ") {
			parts := strings.Split(line, " in ")
			if len(parts) > 1 {
				conflicts = append(conflicts, strings.TrimSpace(parts[len(parts)-1]))
			}
		}
	}
	return conflicts
}

// ReadConflictBlobs reads the three merge stages for each conflicting path
// out of the worktree's index: `git show :1:<path>` is the common
// ancestor, `:2:` is ours, `:3:` is theirs. A stage missing (e.g. the path
// was added on only one side) yields an empty string for that side rather
// than an error.
func (e *Exec) ReadConflictBlobs(worktreePath string, paths []string) ([]ConflictBlobs, error) {
	blobs := make([]ConflictBlobs, 0, len(paths))
	for _, p := range paths {
		cb := ConflictBlobs{Path: p}
		cb.Base, _ = e.run(worktreePath, "show", fmt.Sprintf(":1:%s", p))
		cb.Ours, _ = e.run(worktreePath, "show", fmt.Sprintf(":2:%s", p))
		cb.Theirs, _ = e.run(worktreePath, "show", fmt.Sprintf(":3:%s", p))
		blobs = append(blobs, cb)
	}
	return blobs, nil
}

func (e *Exec) AbortMerge(worktreePath string) error {
	_, err := e.run(worktreePath, "merge", "--abort")
	return err
}

func (e *Exec) Commit(worktreePath, message string) (string, error) {
	if _, err := e.run(worktreePath, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := e.run(worktreePath, "commit", "-m", message); err != nil {
		return "", err
	}
	return e.HeadCommit(worktreePath)
}

// MergeWorktreeIntoBase merges worktreeBranch into baseBranch in the main
// repository checkout. Serialized against other calls on the same Exec
// instance since it mutates the shared main checkout's HEAD.
func (e *Exec) MergeWorktreeIntoBase(repoPath, baseBranch, worktreeBranch string) (*MergeOutcome, error) {
	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	if _, err := e.run(repoPath, "checkout", baseBranch); err != nil {
		return nil, err
	}

	out, err := e.run(repoPath, "merge-tree", "--write-tree", baseBranch, worktreeBranch)
	if err != nil || strings.Contains(out, "CONFLICT") {
		return &MergeOutcome{Merged: false, ConflictFiles: parseConflictFiles(out)}, nil
	}

	if _, err := e.run(repoPath, "merge", "--no-ff", worktreeBranch); err != nil {
		return nil, err
	}
	return &MergeOutcome{Merged: true}, nil
}

// Push pushes branch to origin from inside the worktree, setting the
// upstream on first push.
func (e *Exec) Push(worktreePath, branch string) error {
	_, err := e.run(worktreePath, "push", "--set-upstream", "origin", branch)
	return err
}

// CheckoutNewBranch creates and switches to branch from the worktree's
// current HEAD.
func (e *Exec) CheckoutNewBranch(worktreePath, branch string) error {
	_, err := e.run(worktreePath, "checkout", "-b", branch)
	return err
}

func (e *Exec) RemoveWorktree(repoPath, worktreePath string) error {
	if _, err := e.run(repoPath, "worktree", "remove", worktreePath); err != nil {
		if _, ferr := e.run(repoPath, "worktree", "remove", "--force", worktreePath); ferr != nil {
			return fmt.Errorf("gitfx: remove worktree %s: %w", worktreePath, ferr)
		}
	}
	return nil
}

func (e *Exec) DeleteBranch(repoPath, branch string) error {
	if _, err := e.run(repoPath, "branch", "-d", branch); err != nil {
		if _, ferr := e.run(repoPath, "branch", "-D", branch); ferr != nil {
			return fmt.Errorf("gitfx: delete branch %s: %w", branch, ferr)
		}
	}
	return nil
}
