package cryptox

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != argonKeyLen {
		t.Errorf("expected %d bytes, got %d", argonKeyLen, len(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	if bytes.Equal(DeriveKey(password, []byte("salt-1")), DeriveKey(password, []byte("salt-2"))) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	h := HashPassword([]byte("truck-driver"))
	require.True(t, strings.HasPrefix(h, "argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := VerifyPassword([]byte("truck-driver"), h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword([]byte("wrong"), h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	a := HashPassword([]byte("same"))
	b := HashPassword([]byte("same"))
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, bad := range []string{
		"",
		"bcrypt$whatever",
		"argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"argon2id$v=19$m=x,t=1,p=4$c2FsdA$a2V5",
		"argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5",
	} {
		_, err := VerifyPassword([]byte("pw"), bad)
		assert.ErrorIs(t, err, ErrMalformedHash, bad)
	}
}
