package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"endpoint_addr_grpc":             ":6000",
		"database_dsn":                   "postgres://x",
		"access_token_validity_duration": "2h",
		"s3_bucket":                      "receipts",
		"amqp_url":                       "amqp://localhost/",
	})

	t.Run("overlays present fields", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", path}
		got := defaults()
		parseJson(got)

		want := defaults()
		want.EndpointAddrGRPC = ":6000"
		want.DatabaseDSN = "postgres://x"
		want.AccessTokenValidityDuration = 2 * time.Hour
		want.S3Bucket = "receipts"
		want.AMQPURL = "amqp://localhost/"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(t.TempDir(), "absent.json")}
		require.Panics(t, func() { parseJson(defaults()) })
	})
}
