// Package services holds the business logic of the reference server.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/events"
	"github.com/dmitrijs2005/tripkeeper/internal/server/repositories/records"
	"github.com/google/uuid"
)

var collections = map[string]bool{
	"users": true, "vehicles": true, "taxonomy": true, "trips": true,
	"visits": true, "expenses": true, "fuelings": true,
}

var folders = map[string]bool{"expenses": true, "fuelings": true}

// BlobStore is the object storage the server presigns uploads for.
type BlobStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
}

// Upload is a presigned upload target.
type Upload struct {
	URL       string
	Path      string
	PublicURL string
}

type RecordService struct {
	repo   records.Repository
	blobs  BlobStore
	events events.Publisher
	log    logging.Logger
	now    func() time.Time
}

func NewRecordService(repo records.Repository, blobs BlobStore, pub events.Publisher, log logging.Logger) *RecordService {
	if pub == nil {
		pub = events.Nop()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &RecordService{
		repo:   repo,
		blobs:  blobs,
		events: pub,
		log:    log.With("module", "records_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func checkCollection(c string) error {
	if !collections[c] {
		return fmt.Errorf("%w: unknown collection %q", common.ErrValidation, c)
	}
	return nil
}

// Create stores payload for userID. A create without idempotency key gets a
// fresh one and is therefore never deduplicated.
func (s *RecordService) Create(ctx context.Context, userID, collection, key string, payload map[string]any) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	if key == "" {
		key = uuid.NewString()
	}
	id, err := s.repo.Create(ctx, &records.Record{
		UserID:         userID,
		Collection:     collection,
		IdempotencyKey: key,
		Payload:        payload,
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, events.Created, userID, collection, id)
	return id, nil
}

func (s *RecordService) Update(ctx context.Context, userID, collection, id string, payload map[string]any) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, userID, collection, id, payload); err != nil {
		return err
	}
	s.publish(ctx, events.Updated, userID, collection, id)
	return nil
}

func (s *RecordService) Delete(ctx context.Context, userID, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, collection, id); err != nil {
		return err
	}
	s.publish(ctx, events.Deleted, userID, collection, id)
	return nil
}

func (s *RecordService) publish(ctx context.Context, t events.Type, userID, collection, id string) {
	err := s.events.Publish(ctx, events.Event{Type: t, UserID: userID, Collection: collection, ID: id, At: s.now()})
	if err != nil {
		s.log.Warn(ctx, "event publish failed", "type", t, "collection", collection, "id", id, "error", err)
	}
}

// StorageKey is the object key of a new upload of userID into folder.
func StorageKey(userID, folder string, at time.Time) string {
	return fmt.Sprintf("users/%s/%s/%d/%02d/%s", userID, folder, at.Year(), at.Month(), uuid.New())
}

func (s *RecordService) PresignUpload(ctx context.Context, userID, folder, contentType string) (Upload, error) {
	if !folders[folder] {
		return Upload{}, fmt.Errorf("%w: unknown folder %q", common.ErrValidation, folder)
	}
	key := StorageKey(userID, folder, s.now())
	u, err := s.blobs.PresignPut(ctx, key, contentType)
	if err != nil {
		return Upload{}, err
	}
	return Upload{URL: u, Path: key, PublicURL: s.blobs.PublicURL(key)}, nil
}

// DeleteBlob removes an object of userID. Paths outside the user's prefix
// are rejected.
func (s *RecordService) DeleteBlob(ctx context.Context, userID, path string) error {
	if !strings.HasPrefix(path, "users/"+userID+"/") || strings.Contains(path, "..") {
		return fmt.Errorf("blob %q: %w", path, common.ErrorUnauthorized)
	}
	return s.blobs.Delete(ctx, path)
}
