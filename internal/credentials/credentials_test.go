package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneAttachesNothing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	require.NoError(t, None{}.Attach(context.Background(), req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestTokenAttachesBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	require.NoError(t, Token{Value: "abc123"}.Attach(context.Background(), req))
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
}

func TestUsernamePasswordAttachesBasic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	require.NoError(t, UsernamePassword{Username: "alice", Password: "hunter2"}.Attach(context.Background(), req))
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "hunter2", pass)
}

func TestMalformedKeyringReferenceFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.test/x", nil)
	err := Token{Value: "keyring:no-slash"}.Attach(context.Background(), req)
	assert.Error(t, err)
}
