package syncer

import (
	"context"

	"github.com/dmitrijs2005/tripkeeper/internal/client/client"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// AttachmentManager keeps remote blobs in step with record metadata.
type AttachmentManager struct {
	blobs client.BlobStore
	log   logging.Logger
}

func NewAttachmentManager(blobs client.BlobStore, log logging.Logger) *AttachmentManager {
	if log == nil {
		log = logging.Nop()
	}
	return &AttachmentManager{blobs: blobs, log: log.With("module", "attachments")}
}

// AttachmentPlan is the attachment side of one record write. URL and Path
// are the values to send with the record metadata.
type AttachmentPlan struct {
	URL  string
	Path string

	uploaded string
	obsolete string
	m        *AttachmentManager
}

// Reconcile prepares the attachment of rec for a metadata write. A new local
// payload is uploaded here, before the write; the previous blob is only
// scheduled for deletion. A cleared attachment schedules the previous blob
// and blanks URL and Path. Otherwise the reconciled values are kept.
func (m *AttachmentManager) Reconcile(ctx context.Context, rec *models.Record, folder string) (*AttachmentPlan, error) {
	p := &AttachmentPlan{m: m, URL: rec.AttachmentURL, Path: rec.AttachmentPath}

	switch {
	case len(rec.AttachmentData) > 0:
		blob, err := m.blobs.Upload(ctx, rec.AttachmentData, folder)
		if err != nil {
			return nil, err
		}
		p.URL, p.Path = blob.URL, blob.Path
		p.uploaded = blob.Path
		if rec.AttachmentPath != "" && rec.AttachmentPath != blob.Path {
			p.obsolete = rec.AttachmentPath
		}
	case rec.AttachmentRemoved:
		p.URL, p.Path = "", ""
		p.obsolete = rec.AttachmentPath
	}
	return p, nil
}

// Commit runs after the metadata write succeeded and deletes the blob the
// record no longer references.
func (p *AttachmentPlan) Commit(ctx context.Context) {
	if p == nil {
		return
	}
	p.uploaded = ""
	if p.obsolete == "" {
		return
	}
	p.m.Discard(ctx, p.obsolete)
	p.obsolete = ""
}

// Rollback runs when the metadata write failed and deletes the blob that
// was just uploaded for it.
func (p *AttachmentPlan) Rollback(ctx context.Context) {
	if p == nil || p.uploaded == "" {
		return
	}
	p.m.Discard(ctx, p.uploaded)
	p.uploaded = ""
}

// Discard deletes a blob. Failures are logged, never returned.
func (m *AttachmentManager) Discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := m.blobs.Delete(ctx, path); err != nil {
		m.log.Warn(ctx, "blob delete failed", "path", path, "error", err)
		return
	}
	m.log.Debug(ctx, "blob deleted", "path", path)
}
