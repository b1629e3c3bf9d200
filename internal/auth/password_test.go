package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("mypassword")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotContains(t, string(hash), "mypassword")

	other, err := HashPassword([]byte("mypassword"))
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes must be salted")

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.Error(t, err)
}

func TestComparePassword(t *testing.T) {
	t.Parallel()

	password := "correctpassword"
	hash, err := HashPassword(password)
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(password, hash))
	assert.NoError(t, ComparePassword([]byte(password), hash))
	assert.Error(t, ComparePassword("wrongpassword", hash))
	assert.Error(t, ComparePassword(password, []byte("not-a-hash")))
}
