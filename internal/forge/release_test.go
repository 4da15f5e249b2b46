package forge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octohaul/forge-backup/internal/artifact"
	"github.com/octohaul/forge-backup/internal/credentials"
	"github.com/octohaul/forge-backup/internal/entity"
)

func drainReleases(t *testing.T, src *ReleaseSource) []entity.Context {
	t.Helper()
	var out []entity.Context
	for r := range src.Stream(context.Background()) {
		require.NoError(t, r.Err)
		out = append(out, r.Context)
	}
	return out
}

func TestReleaseSourceMarksAssetDownloadedOnSecondPass(t *testing.T) {
	body := "hello world"
	sum := sha256.Sum256([]byte(body))
	digest := hex.EncodeToString(sum[:])

	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer assetSrv.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget":
			w.Write([]byte(`{"full_name":"acme/widget","clone_url":"https://example.test/acme/widget.git","html_url":"https://example.test/acme/widget"}`))
		case "/repos/acme/widget/releases":
			w.Write([]byte(`[{"tag_name":"v1.0","name":"v1.0","assets":[{"name":"widget.bin","size":11,"browser_download_url":"` + assetSrv.URL + `","content_type":"application/octet-stream","digest":"sha256:` + digest + `"}]}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	client := NewClient(api.URL, credentials.None{}, nil)
	root := t.TempDir()

	src, err := NewReleaseSource(client, "repos/acme/widget", "", 0, entity.Meta{})
	require.NoError(t, err)
	src.Root = root

	first := drainReleases(t, src)
	require.Len(t, first, 2) // the real asset plus the synthetic source tarball
	assert.False(t, first[0].Asset.Downloaded)

	tgt := &artifact.Target{Root: root}
	_, err = tgt.Fetch(context.Background(), artifact.Spec{
		Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin",
		DownloadURL: assetSrv.URL, Digest: digest,
	})
	require.NoError(t, err)

	second := drainReleases(t, src)
	require.Len(t, second, 2)
	assert.True(t, second[0].Asset.Downloaded)
}

func TestReleaseSourceLeavesDownloadedFalseWhenRootUnset(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget":
			w.Write([]byte(`{"full_name":"acme/widget","clone_url":"https://example.test/acme/widget.git"}`))
		case "/repos/acme/widget/releases":
			w.Write([]byte(`[{"tag_name":"v1.0","name":"v1.0","assets":[{"name":"widget.bin","size":11,"browser_download_url":"http://example.test/widget.bin"}]}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	client := NewClient(api.URL, credentials.None{}, nil)
	src, err := NewReleaseSource(client, "repos/acme/widget", "", 0, entity.Meta{})
	require.NoError(t, err)

	results := drainReleases(t, src)
	require.Len(t, results, 2)
	assert.False(t, results[0].Asset.Downloaded)
	assert.False(t, results[1].Asset.Downloaded)
}
