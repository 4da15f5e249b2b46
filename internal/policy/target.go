package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/octohaul/forge-backup/internal/artifact"
	"github.com/octohaul/forge-backup/internal/credentials"
	"github.com/octohaul/forge-backup/internal/entity"
	"github.com/octohaul/forge-backup/internal/mirror"
	"github.com/octohaul/forge-backup/internal/replicate"
	"github.com/octohaul/forge-backup/modules/git"
	"github.com/octohaul/forge-backup/modules/strengthen"
	"github.com/octohaul/forge-backup/pkg/progress"
)

// repoMirrorTarget adapts mirror.Target to pipeline.Target for
// github/repo entities, computing the `<fullname>.git` local path (§4.5.1),
// additionally replicating a bundle of the mirror to a secondary bucket
// when one is configured.
type repoMirrorTarget struct {
	target *mirror.Target
	sink   *replicate.Sink
}

func (t repoMirrorTarget) Handle(ctx context.Context, c entity.Context) error {
	if c.Repo == nil {
		return fmt.Errorf("repo mirror target received an entity with no repo")
	}
	out, err := t.target.Sync(ctx, c.Repo.FullName, c.Repo.CloneURL)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"repo": c.Repo.FullName, "action": out.Action}).Debug("mirror sync complete")
	replicateBundle(ctx, t.sink, out.Path, c.Repo.FullName+".bundle")
	return nil
}

// gistMirrorTarget adapts mirror.Target to pipeline.Target for
// github/gist entities, computing the `<gist_id>.git` local path,
// additionally replicating a bundle of the mirror to a secondary bucket
// when one is configured.
type gistMirrorTarget struct {
	target *mirror.Target
	sink   *replicate.Sink
}

func (t gistMirrorTarget) Handle(ctx context.Context, c entity.Context) error {
	if c.Gist == nil {
		return fmt.Errorf("gist mirror target received an entity with no gist")
	}
	out, err := t.target.Sync(ctx, c.Gist.ID, c.Gist.CloneURL)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"gist": c.Gist.ID, "action": out.Action}).Debug("mirror sync complete")
	replicateBundle(ctx, t.sink, out.Path, c.Gist.ID+".bundle")
	return nil
}

// replicateBundle bundles the bare mirror at repoPath and pushes it to sink
// under key, per SPEC_FULL.md's "bundle of the mirror" secondary-replication
// supplement for git-mirror targets. A nil/disabled sink is a no-op; a
// bundling or replication failure is logged, never returned, matching the
// artifact target's "replication never undoes the primary materialization"
// rule.
func replicateBundle(ctx context.Context, sink *replicate.Sink, repoPath, key string) {
	if !sink.Enabled() {
		return
	}
	tmp, err := os.CreateTemp("", "mirror-bundle-*.bundle")
	if err != nil {
		logrus.Errorf("create bundle temp file for %s: %v", repoPath, err)
		return
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := git.BundleMirror(ctx, repoPath, tmpPath); err != nil {
		logrus.Errorf("bundle %s: %v", repoPath, err)
		return
	}
	if err := sink.Replicate(ctx, key, tmpPath); err != nil {
		logrus.Errorf("replicate bundle %s: %v", key, err)
	}
}

// artifactTarget adapts artifact.Target to pipeline.Target for
// github/release (repo, release, asset) triples (§4.5.2), additionally
// replicating to a secondary bucket when one is configured.
type artifactTarget struct {
	root       string
	decompress bool
	credential credentials.Credential
	sink       *replicate.Sink
	downloads  *progress.Downloads // nil renders no progress bar
}

func (t *artifactTarget) Handle(ctx context.Context, c entity.Context) error {
	if c.Repo == nil || c.Release == nil || c.Asset == nil {
		return fmt.Errorf("artifact target received an incomplete (repo, release, asset) triple")
	}
	owner, name, ok := splitFullName(c.Repo.FullName)
	if !ok {
		return fmt.Errorf("malformed repo fullname %q", c.Repo.FullName)
	}
	target := &artifact.Target{Root: t.root, Credential: t.credential, Decompress: t.decompress}
	if t.downloads != nil {
		target.Progress = t.downloads.Wrap
	}
	spec := artifact.Spec{
		Owner: owner, Repo: name, Tag: c.Release.Tag,
		AssetName: c.Asset.Name, DownloadURL: c.Asset.DownloadURL,
		SizeKB: c.Asset.SizeKB, Digest: c.Asset.Digest, ContentType: c.Asset.ContentType,
	}
	out, err := target.Fetch(ctx, spec)
	if err != nil {
		return err
	}
	if out.AlreadyHad {
		logrus.WithField("asset", spec.AssetName).Debug("asset already present, skipping download")
		return nil
	}
	logrus.WithFields(logrus.Fields{"asset": spec.AssetName, "size": strengthen.FormatSize(spec.SizeKB * 1024)}).Info("asset downloaded")
	if t.sink.Enabled() {
		key := fmt.Sprintf("%s/%s/%s/%s", owner, name, c.Release.Tag, c.Asset.Name)
		if err := t.sink.Replicate(ctx, key, out.Path); err != nil {
			// A replication failure is only logged: the asset still counts
			// as succeeded and the local file above is kept.
			logrus.WithField("asset", spec.AssetName).Errorf("replication failed: %v", err)
		}
	}
	return nil
}

func splitFullName(fullName string) (owner, name string, ok bool) {
	dir, base := filepath.Split(fullName)
	if dir == "" || base == "" {
		return "", "", false
	}
	return dir[:len(dir)-1], base, true
}
