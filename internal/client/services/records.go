// Package services contains the client application services. RecordService
// is the only writer of records: it stamps every mutation with a revision
// and a reconciliation state. UserService manages locally created accounts.
// Neither makes network calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/google/uuid"
)

// AttachmentChange says what an update does with a record's attachment.
type AttachmentChange int

const (
	AttachmentKeep AttachmentChange = iota
	AttachmentReplace
	AttachmentRemove
)

// Patch is a partial update. Payload keys are merged into the stored
// payload; a nil value removes the key. Nil reference pointers leave the
// reference unchanged.
type Patch struct {
	Payload    map[string]any
	TripRef    *string
	VehicleRef *string
	UserRef    *string
	Name       *string

	Attachment     AttachmentChange
	AttachmentData []byte
}

// RecordService implements create, update and soft delete per entity kind.
type RecordService struct {
	repos store.Repositories
	log   logging.Logger

	now   func() time.Time
	newID func() string
}

func NewRecordService(repos store.Repositories, log logging.Logger) *RecordService {
	if log == nil {
		log = logging.Nop()
	}
	return &RecordService{
		repos: repos,
		log:   log.With("module", "records"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (s *RecordService) CreateVehicle(ctx context.Context, payload map[string]any) (string, error) {
	return s.create(ctx, models.CollectionVehicles, &models.Record{Payload: payload})
}

// CreateTrip requires an active vehicle. userRef is optional and, when
// given, must name an active local user.
func (s *RecordService) CreateTrip(ctx context.Context, vehicleRef, userRef string, payload map[string]any) (string, error) {
	if err := s.requireParent(ctx, models.CollectionVehicles, vehicleRef); err != nil {
		return "", err
	}
	if userRef != "" {
		if err := s.requireUser(ctx, userRef); err != nil {
			return "", err
		}
	}
	return s.create(ctx, models.CollectionTrips, &models.Record{
		VehicleRef: vehicleRef,
		UserRef:    common.NormalizeEmail(userRef),
		Payload:    payload,
	})
}

func (s *RecordService) CreateVisit(ctx context.Context, tripRef string, payload map[string]any) (string, error) {
	if err := s.requireParent(ctx, models.CollectionTrips, tripRef); err != nil {
		return "", err
	}
	return s.create(ctx, models.CollectionVisits, &models.Record{TripRef: tripRef, Payload: payload})
}

// CreateExpense stores attachment, if any, as a pending upload.
func (s *RecordService) CreateExpense(ctx context.Context, tripRef string, attachment []byte, payload map[string]any) (string, error) {
	if err := s.requireParent(ctx, models.CollectionTrips, tripRef); err != nil {
		return "", err
	}
	return s.create(ctx, models.CollectionExpenses, &models.Record{
		TripRef:        tripRef,
		AttachmentData: attachment,
		Payload:        payload,
	})
}

// CreateFueling optionally references the refuelled vehicle.
func (s *RecordService) CreateFueling(ctx context.Context, tripRef, vehicleRef string, attachment []byte, payload map[string]any) (string, error) {
	if err := s.requireParent(ctx, models.CollectionTrips, tripRef); err != nil {
		return "", err
	}
	if vehicleRef != "" {
		if err := s.requireParent(ctx, models.CollectionVehicles, vehicleRef); err != nil {
			return "", err
		}
	}
	return s.create(ctx, models.CollectionFuelings, &models.Record{
		TripRef:        tripRef,
		VehicleRef:     vehicleRef,
		AttachmentData: attachment,
		Payload:        payload,
	})
}

// CreateTaxonomyEntry fails with common.ErrAlreadyExists when an active
// entry of the same kind already has name.
func (s *RecordService) CreateTaxonomyEntry(ctx context.Context, kind, name string, payload map[string]any) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if kind != models.KindVisitType && kind != models.KindExpenseType {
		return "", fmt.Errorf("%w: unknown taxonomy kind %q", common.ErrValidation, kind)
	}
	if err := s.requireUniqueName(ctx, kind, name, ""); err != nil {
		return "", err
	}
	return s.create(ctx, models.CollectionTaxonomy, &models.Record{Kind: kind, Name: name, Payload: payload})
}

func (s *RecordService) create(ctx context.Context, c models.Collection, rec *models.Record) (string, error) {
	rec.LocalID = s.newID()
	rec.State = models.StatePending
	rec.Tombstoned = false
	rec.Revision = 1
	rec.UpdatedAt = s.now()
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}

	if err := s.repos.Records().Put(ctx, c, rec); err != nil {
		return "", err
	}
	s.log.Debug(ctx, "record created", "collection", c, "local_id", rec.LocalID)
	return rec.LocalID, nil
}

// maxEditAttempts bounds how often an edit is reapplied after the record
// changed underneath it.
const maxEditAttempts = 5

// errUnchanged tells edit that fn had nothing to write.
var errUnchanged = errors.New("record unchanged")

// edit is the read-modify-write path for existing records. fn mutates a
// fresh copy and the write is a compare-and-set on the revision it read, so
// a concurrent sync write-back or edit forces a reread instead of being
// overwritten.
func (s *RecordService) edit(ctx context.Context, c models.Collection, localID string, fn func(rec *models.Record) (records.AttachmentWrite, error)) (*models.Record, error) {
	for attempt := 1; attempt <= maxEditAttempts; attempt++ {
		rec, err := s.repos.Records().Get(ctx, c, localID)
		if err != nil {
			return nil, err
		}
		expected := rec.Revision

		att, err := fn(rec)
		if err != nil {
			return nil, err
		}
		rec.UpdatedAt = s.now()

		ok, err := s.repos.Records().Save(ctx, c, rec, expected, att)
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Revision = expected + 1
			return rec, nil
		}
		s.log.Debug(ctx, "record changed during edit", "collection", c, "local_id", localID, "attempt", attempt)
	}
	return nil, fmt.Errorf("%s %s keeps changing: %w", c, localID, common.ErrConflict)
}

// Update applies p to the record. A synced record goes back to pending; a
// pending or errored one keeps its state.
func (s *RecordService) Update(ctx context.Context, c models.Collection, localID string, p Patch) error {
	_, err := s.edit(ctx, c, localID, func(rec *models.Record) (records.AttachmentWrite, error) {
		return s.applyPatch(ctx, c, rec, p)
	})
	if err != nil {
		return err
	}
	s.log.Debug(ctx, "record updated", "collection", c, "local_id", localID)
	return nil
}

func (s *RecordService) applyPatch(ctx context.Context, c models.Collection, rec *models.Record, p Patch) (records.AttachmentWrite, error) {
	if rec.Tombstoned {
		return 0, fmt.Errorf("%s %s: %w", c, rec.LocalID, common.ErrTombstoned)
	}

	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	for k, v := range p.Payload {
		if v == nil {
			delete(rec.Payload, k)
			continue
		}
		rec.Payload[k] = v
	}

	if p.VehicleRef != nil && *p.VehicleRef != rec.VehicleRef {
		if *p.VehicleRef != "" || c == models.CollectionTrips {
			if err := s.requireParent(ctx, models.CollectionVehicles, *p.VehicleRef); err != nil {
				return 0, err
			}
		}
		rec.VehicleRef = *p.VehicleRef
	}
	if p.TripRef != nil && *p.TripRef != rec.TripRef {
		if err := s.requireParent(ctx, models.CollectionTrips, *p.TripRef); err != nil {
			return 0, err
		}
		rec.TripRef = *p.TripRef
	}
	if p.UserRef != nil && *p.UserRef != rec.UserRef {
		if *p.UserRef != "" {
			if err := s.requireUser(ctx, *p.UserRef); err != nil {
				return 0, err
			}
		}
		rec.UserRef = common.NormalizeEmail(*p.UserRef)
	}
	if p.Name != nil && c == models.CollectionTaxonomy {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return 0, fmt.Errorf("%w: name is required", common.ErrValidation)
		}
		if name != rec.Name {
			if err := s.requireUniqueName(ctx, rec.Kind, name, rec.LocalID); err != nil {
				return 0, err
			}
			rec.Name = name
		}
	}

	switch p.Attachment {
	case AttachmentReplace, AttachmentRemove:
		if !c.HasAttachment() {
			return 0, fmt.Errorf("%w: %s have no attachments", common.ErrValidation, c)
		}
		if p.Attachment == AttachmentRemove {
			rec.AttachmentData = nil
			return records.ClearAttachment, nil
		}
		if len(p.AttachmentData) == 0 {
			return 0, fmt.Errorf("%w: empty attachment", common.ErrValidation)
		}
		rec.AttachmentData = p.AttachmentData
		return records.SetAttachment, nil
	}
	return records.KeepAttachment, nil
}

// SoftDelete tombstones the record. Deleting a trip tombstones its visits,
// expenses and fuelings in the same call. A missing record is not an error.
func (s *RecordService) SoftDelete(ctx context.Context, c models.Collection, localID string) error {
	_, err := s.tombstone(ctx, c, localID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil || c != models.CollectionTrips {
		return err
	}

	rec, err := s.repos.Records().Get(ctx, c, localID)
	if err != nil {
		return err
	}

	refs := []string{rec.LocalID}
	if rec.RemoteID != "" {
		refs = append(refs, rec.RemoteID)
	}
	cascaded := 0
	for _, child := range models.TripChildren {
		for _, ref := range refs {
			children, err := s.repos.Records().ListByParent(ctx, child, records.FieldTripRef, ref)
			if err != nil {
				return err
			}
			for _, ch := range children {
				if ch.Tombstoned {
					continue
				}
				done, err := s.tombstone(ctx, child, ch.LocalID)
				if err != nil {
					return err
				}
				if done {
					cascaded++
				}
			}
		}
	}
	if cascaded > 0 {
		s.log.Info(ctx, "trip deletion cascaded", "local_id", localID, "children", cascaded)
	}
	return nil
}

// tombstone marks the record deleted. It reports false when the record was
// already tombstoned.
func (s *RecordService) tombstone(ctx context.Context, c models.Collection, localID string) (bool, error) {
	_, err := s.edit(ctx, c, localID, func(rec *models.Record) (records.AttachmentWrite, error) {
		if rec.Tombstoned {
			return 0, errUnchanged
		}
		rec.Tombstoned = true
		rec.AttachmentData = nil
		return records.DropAttachmentData, nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Debug(ctx, "record tombstoned", "collection", c, "local_id", localID)
	return true, nil
}

// Get returns an active record. Tombstoned records read as not found.
func (s *RecordService) Get(ctx context.Context, c models.Collection, localID string) (*models.Record, error) {
	rec, err := s.repos.Records().Get(ctx, c, localID)
	if err != nil {
		return nil, err
	}
	if rec.Tombstoned {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

// List returns the active records of c.
func (s *RecordService) List(ctx context.Context, c models.Collection) ([]*models.Record, error) {
	return s.repos.Records().GetAllActive(ctx, c)
}

// ListChildren returns the active records of c belonging to the trip.
func (s *RecordService) ListChildren(ctx context.Context, c models.Collection, tripRef string) ([]*models.Record, error) {
	all, err := s.repos.Records().ListByParent(ctx, c, records.FieldTripRef, tripRef)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, r := range all {
		if !r.Tombstoned {
			active = append(active, r)
		}
	}
	return active, nil
}

// requireParent accepts a reference by local id or by remote id.
func (s *RecordService) requireParent(ctx context.Context, c models.Collection, ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: %s reference is required", common.ErrParentNotFound, c)
	}
	parent, err := s.repos.Records().Get(ctx, c, ref)
	if errors.Is(err, common.ErrorNotFound) {
		parent, err = s.repos.Records().FindByRemoteID(ctx, c, ref)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%s %s: %w", c, ref, common.ErrParentNotFound)
	}
	if err != nil {
		return err
	}
	if parent.Tombstoned {
		return fmt.Errorf("%s %s is deleted: %w", c, ref, common.ErrParentNotFound)
	}
	return nil
}

func (s *RecordService) requireUser(ctx context.Context, email string) error {
	u, err := s.repos.Users().Get(ctx, common.NormalizeEmail(email))
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("user %s: %w", email, common.ErrParentNotFound)
	}
	if err != nil {
		return err
	}
	if u.Tombstoned {
		return fmt.Errorf("user %s is deleted: %w", email, common.ErrParentNotFound)
	}
	return nil
}

func (s *RecordService) requireUniqueName(ctx context.Context, kind, name, self string) error {
	existing, err := s.repos.Records().FindActiveByName(ctx, kind, name)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.LocalID == self {
		return nil
	}
	return fmt.Errorf("%s %q: %w", kind, name, common.ErrAlreadyExists)
}
