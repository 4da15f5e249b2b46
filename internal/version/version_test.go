package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFormatsVersionAndCommit(t *testing.T) {
	old := Version
	oldCommit := Commit
	defer func() { Version, Commit = old, oldCommit }()
	Version, Commit = "1.2.3", "abc1234"
	assert.Equal(t, "1.2.3 (abc1234)", String())
}
