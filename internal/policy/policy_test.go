package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUnmarshalTokenCredential(t *testing.T) {
	var p Policy
	require.NoError(t, yaml.Unmarshal([]byte(`
kind: github/repo
from: user
to: /tmp/x
credentials: !Token "abc123"
`), &p))
	assert.Equal(t, "Token", p.Credentials.Kind)
	assert.Equal(t, "abc123", p.Credentials.Token)
}

func TestUnmarshalUsernamePasswordCredential(t *testing.T) {
	var p Policy
	require.NoError(t, yaml.Unmarshal([]byte(`
kind: github/repo
from: user
to: /tmp/x
credentials: !UsernamePassword
  username: alice
  password: hunter2
`), &p))
	assert.Equal(t, "UsernamePassword", p.Credentials.Kind)
	assert.Equal(t, "alice", p.Credentials.Username)
	assert.Equal(t, "hunter2", p.Credentials.Password)
}

func TestUnmarshalAbsentCredentialIsNone(t *testing.T) {
	var p Policy
	require.NoError(t, yaml.Unmarshal([]byte(`
kind: github/repo
from: user
to: /tmp/x
`), &p))
	assert.Empty(t, p.Credentials.Kind)
}

func TestValidateAcceptsKnownCombinations(t *testing.T) {
	cfg := &Config{Backups: []Policy{
		{Kind: "github/repo", From: "users/alice", To: "/tmp/x"},
		{Kind: "github/release", From: "orgs/acme", To: "/tmp/y"},
		{Kind: "github/gist", From: "user", To: "/tmp/z"},
	}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnsupportedKind(t *testing.T) {
	cfg := &Config{Backups: []Policy{{Kind: "github/wiki", From: "user", To: "/tmp/x"}}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsStarredForRelease(t *testing.T) {
	cfg := &Config{Backups: []Policy{{Kind: "github/release", From: "starred", To: "/tmp/x"}}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedFilter(t *testing.T) {
	cfg := &Config{Backups: []Policy{{Kind: "github/repo", From: "user", To: "/tmp/x", Filter: "repo.name ==="}}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingTo(t *testing.T) {
	cfg := &Config{Backups: []Policy{{Kind: "github/repo", From: "user"}}}
	assert.Error(t, cfg.Validate())
}

func TestBindRepoPolicyProducesPipelinePolicy(t *testing.T) {
	p := Policy{Kind: "github/repo", From: "users/alice", To: "/tmp/x", Filter: `!repo.fork`}
	bound, err := Bind(p, nil, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, "github/repo:users/alice", bound.Name)
	assert.NotNil(t, bound.Source)
	assert.NotNil(t, bound.Target)
	assert.NotNil(t, bound.Filter)
}

func TestBindExpandsHomeRelativeToPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p := Policy{Kind: "github/repo", From: "users/alice", To: "~/backups/alice"}
	bound, err := Bind(p, nil, time.Now(), nil)
	require.NoError(t, err)

	mt, ok := bound.Target.(repoMirrorTarget)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(home, "backups", "alice"), mt.target.Root)
}

func TestSplitFullName(t *testing.T) {
	owner, name, ok := splitFullName("acme/widget")
	require.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", name)
}

func TestSplitFullNameRejectsMissingSlash(t *testing.T) {
	_, _, ok := splitFullName("widget")
	assert.False(t, ok)
}
