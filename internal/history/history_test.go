package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableStringEmptyIsNil(t *testing.T) {
	assert.Nil(t, nullableString(""))
}

func TestNullableStringNonEmptyPassesThrough(t *testing.T) {
	assert.Equal(t, "boom", nullableString("boom"))
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	_, err := Open(context.Background(), "not a valid dsn!!")
	assert.Error(t, err)
}
