// Package gitfx is the orchestrator's git effects boundary: worktree
// lifecycle, branch management, and base-branch merging, all expressed
// through an interface so the scheduler and worker packages can be tested
// against a fake instead of a real git checkout.
package gitfx

// WorktreeInfo describes a created worktree.
type WorktreeInfo struct {
	Path   string
	Branch string
	TaskID string
	Head   string
}

// MergeOutcome is the result of attempting to merge a base branch into a
// worktree branch (or a worktree branch into the base branch).
type MergeOutcome struct {
	Merged        bool
	ConflictFiles []string
}

// ConflictBlobs holds the three-way content for one conflicting path,
// extracted from the index stages left behind by a failed merge: stage 1
// is the common ancestor, stage 2 is "ours", stage 3 is "theirs".
type ConflictBlobs struct {
	Path   string
	Base   string
	Ours   string
	Theirs string
}

// Effects is the git operations surface the orchestrator depends on. The
// real implementation shells out to the git CLI; tests substitute a fake.
type Effects interface {
	// CreateWorktree adds a new worktree at <repoPath>/<worktreeDir>/<taskID>
	// on a new branch cut from baseBranch.
	CreateWorktree(repoPath, worktreeDir, taskID, branch, baseBranch string) (*WorktreeInfo, error)

	// MergeBaseIntoWorktree merges baseBranch into the worktree's branch,
	// from inside the worktree, so a task can pick up upstream changes
	// mid-flight. Returns a non-merged MergeOutcome (not an error) when the
	// merge-tree dry run reports conflicts.
	MergeBaseIntoWorktree(worktreePath, baseBranch string) (*MergeOutcome, error)

	// ReadConflictBlobs extracts the base/ours/theirs content for each
	// conflicting path after a failed merge is left in the worktree's index.
	ReadConflictBlobs(worktreePath string, paths []string) ([]ConflictBlobs, error)

	// AbortMerge resets an in-progress conflicted merge in the worktree.
	AbortMerge(worktreePath string) error

	// Commit stages all changes in the worktree and commits them with
	// message. Returns the new commit hash.
	Commit(worktreePath, message string) (string, error)

	// MergeWorktreeIntoBase merges the worktree's branch into baseBranch in
	// the main repository checkout, serialized against other merges.
	MergeWorktreeIntoBase(repoPath, baseBranch, worktreeBranch string) (*MergeOutcome, error)

	// Push pushes branch from the worktree to origin. Failure to push is
	// non-fatal to task completion; callers log and continue.
	Push(worktreePath, branch string) error

	// CheckoutNewBranch creates and switches to branch from the worktree's
	// current HEAD, used by SerialChainExecutor to give each chain step its
	// own branch while accumulating changes in one shared worktree.
	CheckoutNewBranch(worktreePath, branch string) error

	// RemoveWorktree removes the worktree directory, forcing if necessary.
	RemoveWorktree(repoPath, worktreePath string) error

	// DeleteBranch deletes a branch, forcing if necessary.
	DeleteBranch(repoPath, branch string) error

	// HeadCommit returns the current HEAD commit hash in dir.
	HeadCommit(dir string) (string, error)
}
