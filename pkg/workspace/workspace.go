// Package workspace detects the git surroundings of the directory a
// shell session runs in. The result decorates the status line and is
// stamped onto session records. Detection failures are deliberately
// silent: running outside a repository is a normal way to use the
// shell, not an error.
package workspace

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Info describes the git context of a working directory. The zero
// value means the directory is not inside a repository.
type Info struct {
	Root     string `json:"root,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Detached bool   `json:"detached,omitempty"`
}

// InRepo reports whether the directory sits inside a git repository.
func (i Info) InRepo() bool { return i.Root != "" }

// Label renders the repo@branch pair shown on the status line. It is
// empty outside a repository and degrades to the bare repo name for a
// freshly initialized repository with no commits.
func (i Info) Label() string {
	switch {
	case i.Repo == "":
		return ""
	case i.Branch == "":
		return i.Repo
	default:
		return i.Repo + "@" + i.Branch
	}
}

// Detect walks up from path looking for a git repository and reads its
// HEAD. Outside a repository it returns the zero Info.
func Detect(path string) Info {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return Info{}
	}

	var info Info
	if wt, err := repo.Worktree(); err == nil {
		info.Root = wt.Filesystem.Root()
	}
	info.Repo = repoName(repo, info.Root)

	head, err := repo.Head()
	if err != nil {
		// Freshly initialized repository with no commits yet.
		return info
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
		return info
	}
	info.Branch = head.Hash().String()[:8]
	info.Detached = true
	return info
}

// repoName prefers the origin remote so clones keep their upstream
// name even when checked out into a differently named directory.
func repoName(repo *git.Repository, root string) string {
	if remote, err := repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			if name := nameFromRemoteURL(urls[0]); name != "" {
				return name
			}
		}
	}
	if root != "" {
		return filepath.Base(root)
	}
	return ""
}

// nameFromRemoteURL extracts the trailing path element from an https,
// ssh, or scp-style remote URL.
func nameFromRemoteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "/")
	raw = strings.TrimSuffix(raw, ".git")
	if idx := strings.LastIndexAny(raw, "/:"); idx >= 0 {
		raw = raw[idx+1:]
	}
	return raw
}
