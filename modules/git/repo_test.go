package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBareRepositoryNonRepo(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsBareRepository(context.Background(), dir))
}

func TestMirrorCloneAndFetch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	upstream := t.TempDir()
	initUpstream(t, upstream)

	mirrorPath := filepath.Join(t.TempDir(), "mirror.git")
	require.NoError(t, MirrorClone(context.Background(), upstream, mirrorPath,
		[]string{"+refs/heads/*:refs/remotes/origin/*"}, nil))
	assert.True(t, IsBareRepository(context.Background(), mirrorPath))

	require.NoError(t, FetchMirror(context.Background(), mirrorPath,
		[]string{"+refs/heads/*:refs/remotes/origin/*"}, nil))
}

func initUpstream(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git unavailable, skipping mirror test: %v: %s", err, out)
		}
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("commit", "--allow-empty", "-q", "-m", "initial")
}
