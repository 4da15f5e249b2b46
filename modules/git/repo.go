package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/octohaul/forge-backup/modules/command"
)

func IsBareRepository(ctx context.Context, repoPath string) bool {
	cmd := command.New(ctx, command.NoDir, "git", "--git-dir", repoPath, "config", "--get", "core.bare")
	v, err := cmd.OneLine()
	if err != nil {
		return false
	}
	return strings.EqualFold(v, "true")
}

const (
	differentHashErr     = "fatal: attempt to reinitialize repository with different hash"
	invalidBranchNameErr = "fatal: invalid initial branch name"
)

var (
	ErrDifferentHash     = errors.New("attempt to reinitialize repository with different hash")
	ErrInvalidBranchName = errors.New("invalid initial branch name")
)

// MirrorClone creates a new bare mirror of remoteURL at repoPath using
// `git clone --bare --mirror`, honoring the refspecs the caller wants
// tracked. An empty refspecs slice leaves git's default mirror refspec
// (+refs/*:refs/*) in place.
func MirrorClone(ctx context.Context, remoteURL, repoPath string, refspecs []string, extraEnv []string) error {
	stderr := command.NewStderr()
	psArgs := []string{"clone", "--bare", "--mirror"}
	for _, rs := range refspecs {
		psArgs = append(psArgs, "--config", "remote.origin.fetch="+rs)
	}
	psArgs = append(psArgs, remoteURL, repoPath)
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		Stderr:   stderr,
		ExtraEnv: extraEnv,
	}, "git", psArgs...)
	if err := cmd.RunEx(); err != nil {
		return classifyRepoError(repoPath, "clone", err, stderr.String())
	}
	return nil
}

// FetchMirror updates an existing bare mirror at repoPath by forcing the
// given refspecs (e.g. "+refs/heads/*:refs/remotes/origin/*"). Pruning is
// always enabled so deleted upstream refs disappear locally too.
func FetchMirror(ctx context.Context, repoPath string, refspecs []string, extraEnv []string) error {
	stderr := command.NewStderr()
	psArgs := []string{"--git-dir", repoPath, "fetch", "--prune", "--force", "origin"}
	psArgs = append(psArgs, refspecs...)
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		Stderr:   stderr,
		ExtraEnv: extraEnv,
	}, "git", psArgs...)
	if err := cmd.RunEx(); err != nil {
		return classifyRepoError(repoPath, "fetch", err, stderr.String())
	}
	return nil
}

// BundleMirror writes a full point-in-time bundle of the bare mirror at
// repoPath to bundlePath, for pushing a snapshot to a secondary store.
func BundleMirror(ctx context.Context, repoPath, bundlePath string) error {
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		Stderr: stderr,
	}, "git", "--git-dir", repoPath, "bundle", "create", bundlePath, "--all")
	if err := cmd.RunEx(); err != nil {
		return classifyRepoError(repoPath, "bundle", err, stderr.String())
	}
	return nil
}

func classifyRepoError(repoPath, op string, err error, message string) error {
	if strings.HasPrefix(message, differentHashErr) {
		return ErrDifferentHash
	}
	if strings.HasPrefix(message, invalidBranchNameErr) {
		return ErrInvalidBranchName
	}
	return fmt.Errorf("%s %s error %w stderr: %s", op, repoPath, err, message)
}
