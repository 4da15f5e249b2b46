// Package mirror implements the git-mirror target adapter (§4.5.1): for
// each Repository or Gist entity, clone or fetch a bare mirror under the
// configured destination root.
package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/octohaul/forge-backup/modules/git"
	"github.com/octohaul/forge-backup/modules/trace"
)

// DefaultRefspecs is the forced refspec §4.5.1 and §9 mandate: the mirror
// tracks the remote exactly, including force-pushed tips.
var DefaultRefspecs = []string{"+refs/heads/*:refs/remotes/origin/*"}

// Target materializes Repository/Gist entities as bare git mirrors under
// Root.
type Target struct {
	Root     string
	Refspecs []string
	ExtraEnv []string // credential/transport injection (e.g. GIT_ASKPASS), never secrets on disk
}

// Outcome records what a single Sync call did, for logging and per-policy
// counters (§4.6).
type Outcome struct {
	Path    string
	Action  string // "clone" or "fetch"
	Skipped bool
}

// Sync clones or fetches localName (the "<fullname>" for a repo or the
// gist ID for a gist) from remoteURL into Root/<localName>.git, per
// §4.5.1's numbered steps. Failure of one entity must not abort others —
// callers run Sync per-entity under the pipeline's per-entity failure
// isolation, never propagating one Sync's error into another's.
func (t *Target) Sync(ctx context.Context, localName, remoteURL string) (Outcome, error) {
	refspecs := t.Refspecs
	if len(refspecs) == 0 {
		refspecs = DefaultRefspecs
	}
	path := t.localPath(localName)

	if git.IsBareRepository(ctx, path) {
		trace.DbgPrint("fetch %s into %s (refspecs %v)", remoteURL, path, refspecs)
		if err := git.FetchMirror(ctx, path, refspecs, t.ExtraEnv); err != nil {
			return Outcome{Path: path, Action: "fetch"}, fmt.Errorf("fetch mirror %s: %w", path, err)
		}
		return Outcome{Path: path, Action: "fetch"}, nil
	}

	trace.DbgPrint("clone %s into %s (refspecs %v)", remoteURL, path, refspecs)
	if err := git.MirrorClone(ctx, remoteURL, path, refspecs, t.ExtraEnv); err != nil {
		return Outcome{Path: path, Action: "clone"}, fmt.Errorf("clone mirror %s: %w", path, err)
	}
	return Outcome{Path: path, Action: "clone"}, nil
}

func (t *Target) localPath(localName string) string {
	clean := strings.TrimSuffix(localName, ".git")
	return filepath.Join(t.Root, clean+".git")
}

// ParseRefspecs splits the comma-separated §6 refspec list; an empty
// string yields DefaultRefspecs.
func ParseRefspecs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return DefaultRefspecs
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
