package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2.39.1")
	require.NoError(t, err)
	assert.Equal(t, "2.39.1", v.String())
	assert.True(t, v.Equal(NewVersion(2, 39, 1)))
}

func TestParseVersionRC(t *testing.T) {
	v, err := ParseVersion("2.40.0-rc1")
	require.NoError(t, err)
	assert.True(t, v.LessThan(NewVersion(2, 40, 0)))
}

func TestParseVersionGITFallback(t *testing.T) {
	v, err := ParseVersion("2.39.GIT")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v.patch)
}

func TestParseVersionInvalid(t *testing.T) {
	_, err := ParseVersion("nope")
	assert.Error(t, err)
}

func TestParseVersionOutput(t *testing.T) {
	v, err := ParseVersionOutput([]byte("git version 2.39.1\n"))
	require.NoError(t, err)
	assert.Equal(t, "2.39.1", v.String())
}

func TestParseVersionOutputInvalid(t *testing.T) {
	_, err := ParseVersionOutput([]byte("garbage"))
	assert.Error(t, err)
}

func TestVersionOrdering(t *testing.T) {
	older := NewVersion(2, 38, 0)
	newer := NewVersion(2, 39, 0)
	assert.True(t, older.LessThan(newer))
	assert.True(t, newer.GreaterOrEqual(older))
	assert.False(t, newer.LessThan(older))
}
