// Package metadata stores small key/value facts about the local store:
// the device id, the time of the last sync pass and its summary.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyDeviceID    = "device_id"
	KeyLastSyncAt  = "last_sync_at"
	KeyLastSummary = "last_summary"
	KeyCurrentUser = "current_user"
)

type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
