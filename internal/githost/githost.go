// Package githost implements the source-control collaborator by shelling
// out to the git binary against a local clone with a configured remote.
package githost

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/relcut/relcut/pkg/api"
)

// ExecHost drives git in a working clone. All branch mutations are pushed
// to Remote as they happen.
type ExecHost struct {
	// Dir is the repository working directory.
	Dir string

	// Remote is the push/delete target. Empty means "origin".
	Remote string
}

var _ api.SourceHost = (*ExecHost)(nil)

// New returns an ExecHost for the clone at dir using the "origin" remote.
func New(dir string) *ExecHost {
	return &ExecHost{Dir: dir}
}

func (h *ExecHost) remote() string {
	if h.Remote == "" {
		return "origin"
	}
	return h.Remote
}

func (h *ExecHost) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// HeadSHA resolves ref to its commit identifier.
func (h *ExecHost) HeadSHA(ctx context.Context, ref string) (string, error) {
	return h.git(ctx, "rev-parse", ref)
}

// CreateBranch creates name from fromRef, checks it out, and pushes it to
// the remote. The checkout means file edits made between CreateBranch and
// Commit land on the new branch regardless of where the clone was before.
func (h *ExecHost) CreateBranch(ctx context.Context, name, fromRef string) error {
	if _, err := h.git(ctx, "checkout", "-b", name, fromRef); err != nil {
		return err
	}
	return h.Push(ctx, name)
}

// Commit checks out branch, stages everything pending, and commits.
func (h *ExecHost) Commit(ctx context.Context, branch, message string) (string, error) {
	if _, err := h.git(ctx, "checkout", branch); err != nil {
		return "", err
	}
	if _, err := h.git(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := h.git(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return h.git(ctx, "rev-parse", "HEAD")
}

// Push publishes branch to the remote.
func (h *ExecHost) Push(ctx context.Context, branch string) error {
	_, err := h.git(ctx, "push", h.remote(), branch)
	return err
}

// Merge merges from into into with fast-forward when possible and pushes
// the result. Conflicts abort the merge and surface as MergeConflictError.
func (h *ExecHost) Merge(ctx context.Context, from, into string) (string, error) {
	if _, err := h.git(ctx, "checkout", into); err != nil {
		return "", err
	}
	if out, err := h.git(ctx, "merge", "--no-edit", from); err != nil {
		if strings.Contains(out, "CONFLICT") {
			// Leave the tree clean for the operator.
			_, _ = h.git(ctx, "merge", "--abort")
			return "", &api.MergeConflictError{From: from, Into: into, Detail: strings.TrimSpace(out)}
		}
		return "", err
	}
	if err := h.Push(ctx, into); err != nil {
		return "", err
	}
	return h.git(ctx, "rev-parse", "HEAD")
}

// DeleteBranch removes name locally and on the remote.
func (h *ExecHost) DeleteBranch(ctx context.Context, name string) error {
	if _, err := h.git(ctx, "push", h.remote(), "--delete", name); err != nil {
		return err
	}
	_, err := h.git(ctx, "branch", "-D", name)
	return err
}
