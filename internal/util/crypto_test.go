package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHmacSHA256(t *testing.T) {
	sig := HmacSHA256("secret", "payload")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, HmacSHA256("secret", "payload"))
	assert.NotEqual(t, sig, HmacSHA256("other", "payload"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abd"))
	assert.False(t, ConstantTimeEqual("abc", "abcd"))
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("token-123"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("token-123", string(hash)))
	assert.False(t, CheckPasswordHash("wrong", string(hash)))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "***777", MaskPhone("51999888777"))
	assert.Equal(t, "***", MaskPhone("12"))
}
