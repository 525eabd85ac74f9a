package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("hello world\n"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("lastline"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestGetPassword(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }
	var out bytes.Buffer
	pw, err := GetPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), pw)

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = GetPassword(&out)
	require.Error(t, err)
}

func TestGetFields(t *testing.T) {
	in := bufio.NewReader(strings.NewReader(
		"model=Volvo FH\nplate=\"1234\"\nodometer=120500\nliters=41.5\nrefrigerated=true\nnote=\n\nignored=1\n"))
	var out bytes.Buffer

	got, err := GetFields(in, "Enter fields", &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"model":        "Volvo FH",
		"plate":        "1234",
		"odometer":     int64(120500),
		"liters":       41.5,
		"refrigerated": true,
		"note":         nil,
	}, got)
}

func TestGetFields_EOFAndErrors(t *testing.T) {
	var out bytes.Buffer

	got, err := GetFields(bufio.NewReader(strings.NewReader("a=1")), "x", &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, got)

	_, err = GetFields(bufio.NewReader(strings.NewReader("nonsense\n")), "x", &out)
	require.ErrorIs(t, err, common.ErrValidation)
}
