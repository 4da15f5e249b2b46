package artifact

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAsset(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
}

func TestFetchWritesFileAndSidecar(t *testing.T) {
	srv := serveAsset(t, "hello world")
	defer srv.Close()

	root := t.TempDir()
	tgt := &Target{Root: root}
	spec := Spec{Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin", DownloadURL: srv.URL}

	out, err := tgt.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, out.AlreadyHad)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	_, err = os.Stat(out.Path + ".sha256")
	require.NoError(t, err)
}

func TestFetchIsIdempotentOnSecondRun(t *testing.T) {
	srv := serveAsset(t, "hello world")
	defer srv.Close()

	root := t.TempDir()
	tgt := &Target{Root: root}
	spec := Spec{Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin", DownloadURL: srv.URL, SizeKB: 0}

	_, err := tgt.Fetch(context.Background(), spec)
	require.NoError(t, err)

	out2, err := tgt.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, out2.AlreadyHad)
}

func TestFetchSizeMismatchIsIntegrityErrorAndLeavesNoPartialFile(t *testing.T) {
	srv := serveAsset(t, "short")
	defer srv.Close()

	root := t.TempDir()
	tgt := &Target{Root: root}
	spec := Spec{Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin", DownloadURL: srv.URL, SizeKB: 100}

	_, err := tgt.Fetch(context.Background(), spec)
	require.Error(t, err)
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)

	entries, err := os.ReadDir(filepath.Join(root, "acme", "widget", "v1.0"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchDigestMismatchIsIntegrityError(t *testing.T) {
	srv := serveAsset(t, "hello world")
	defer srv.Close()

	root := t.TempDir()
	tgt := &Target{Root: root}
	spec := Spec{
		Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin",
		DownloadURL: srv.URL, Digest: "0000000000000000000000000000000000000000000000000000000000000000",
	}

	_, err := tgt.Fetch(context.Background(), spec)
	require.Error(t, err)
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
}

func TestFetchDecompressesGzipAndStripsSuffix(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(gz.Bytes())
	}))
	defer srv.Close()

	root := t.TempDir()
	tgt := &Target{Root: root, Decompress: true}
	spec := Spec{
		Owner: "acme", Repo: "widget", Tag: "v1.0", AssetName: "widget.bin.gz",
		DownloadURL: srv.URL, ContentType: "application/gzip",
	}

	out, err := tgt.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "widget.bin", filepath.Base(out.Path))

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	out2, err := tgt.Fetch(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, out2.AlreadyHad)
}

func TestReadSidecarFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin.sha256")
	require.NoError(t, writeSidecar(path, "abc123", "asset.bin"))
	digest, err := readSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", digest)
}
