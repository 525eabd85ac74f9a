package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWipeByteArray(t *testing.T) {
	password := []byte("hunter2")
	WipeByteArray(password)
	assert.Equal(t, make([]byte, 7), password)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(16)
	b := GenerateRandByteArray(16)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Empty(t, GenerateRandByteArray(0))
}

func TestNormalizeEmail(t *testing.T) {
	tests := map[string]string{
		"Driver@Example.COM": "driver@example.com",
		"  a@b.c ":           "a@b.c",
		"\tFleet@Depot.io\n": "fleet@depot.io",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEmail(in), "input %q", in)
	}
}
