package client

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// RemoteAdapter is the remote store of one collection.
type RemoteAdapter interface {
	// Create stores payload remotely and returns the new remote id.
	// Servers that honour idempotencyKey return the same id for a retry.
	Create(ctx context.Context, idempotencyKey string, payload map[string]any) (string, error)
	Update(ctx context.Context, remoteID string, payload map[string]any) error
	Delete(ctx context.Context, remoteID string) error
}

// Remotes returns the RemoteAdapter of a collection.
type Remotes interface {
	Remote(c models.Collection) RemoteAdapter
}

// Blob is a stored attachment.
type Blob struct {
	URL  string
	Path string
}

// BlobStore uploads and deletes attachments.
type BlobStore interface {
	// Upload accepts raw bytes or a data: URI.
	Upload(ctx context.Context, data []byte, folder string) (Blob, error)
	Delete(ctx context.Context, path string) error
}

// Connectivity reports whether the remote is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}
