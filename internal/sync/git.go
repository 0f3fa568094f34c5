package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Committer identity for backup commits. Server clones often have no
// user.name configured.
const (
	gitAuthorName  = "seatcheck"
	gitAuthorEmail = "seatcheck@localhost"
)

// GitDestination keeps the attendance export in a git clone so every
// submission leaves a reviewable diff.
type GitDestination struct {
	repo   string
	file   string // relative to repo
	branch string
}

// NewGitDestination returns a destination writing file inside the existing
// clone at repo and pushing to branch.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

func (d *GitDestination) Name() string { return "git:" + d.repo + "@" + d.branch }

// Write replaces the export file, commits it if it changed, and pushes.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// Tolerated: the branch may not exist on origin yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	if _, err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}
	if _, err := d.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return nil
	}
	if _, err := d.git(ctx,
		"-c", "user.name="+gitAuthorName, "-c", "user.email="+gitAuthorEmail,
		"commit", "-m", commitMessage(data)); err != nil {
		return err
	}
	_, err := d.git(ctx, "push", "origin", d.branch)
	return err
}

// commitMessage summarizes an export using its header line.
func commitMessage(data []byte) string {
	first, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if err := json.Unmarshal(first, &h); err != nil || h.Type != "header" {
		return "attendance: update records"
	}
	return fmt.Sprintf("attendance: %d records across %d sessions", h.RecordCount, h.SessionCount)
}

func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", gitVerb(args), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// gitVerb returns the subcommand, skipping leading -c options.
func gitVerb(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
