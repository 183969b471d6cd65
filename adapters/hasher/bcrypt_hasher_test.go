package hasher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/layer-3/panadero/core"
)

func TestHashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	require.NoError(t, h.Compare(hash, "secret1"))
	require.ErrorIs(t, h.Compare(hash, "secret2"), core.ErrInvalidCredentials)
}

func TestHashIsSalted(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	first, err := h.Hash("secret1")
	require.NoError(t, err)
	second, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCompareMalformedHash(t *testing.T) {
	err := NewBcryptHasher(bcrypt.MinCost).Compare("not-a-hash", "secret1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrInvalidCredentials)
}

func TestInvalidCostFallsBackToDefault(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
}

func TestHashRejectsOverlongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, core.ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("a", 72))
	require.NoError(t, err)
}
