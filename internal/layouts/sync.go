package layouts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Sync clones the layout bundle repository into the layouts directory, or
// pulls when a checkout already exists. Returns whether anything changed.
func (b *Bundles) Sync(repoURL, branch string) (bool, error) {
	if repoURL == "" {
		return false, fmt.Errorf("layout repository URL not configured")
	}

	if _, err := os.Stat(b.root); os.IsNotExist(err) {
		slog.Info("Cloning layout bundles", "url", repoURL, "branch", branch, "dir", b.root)
		cloneOptions := &git.CloneOptions{URL: repoURL}
		if branch != "" {
			cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + branch)
			cloneOptions.SingleBranch = true
		}
		if _, err := git.PlainClone(b.root, false, cloneOptions); err != nil {
			return false, fmt.Errorf("clone layout repository: %w", err)
		}
		return true, nil
	}

	repo, err := git.PlainOpen(b.root)
	if err != nil {
		return false, fmt.Errorf("open layout checkout %s: %w", b.root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("layout worktree: %w", err)
	}

	slog.Debug("Pulling layout bundles", "dir", b.root)
	err = wt.Pull(&git.PullOptions{SingleBranch: true})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull layout repository: %w", err)
	}
	slog.Info("Layout bundles updated", "dir", b.root)
	return true, nil
}
