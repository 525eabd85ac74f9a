// Package models defines the client-side data model: synchronizable records,
// users and sync pass summaries.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Collection names one physical table of the local store.
type Collection string

const (
	CollectionVehicles Collection = "vehicles"
	CollectionTrips    Collection = "trips"
	CollectionVisits   Collection = "visits"
	CollectionExpenses Collection = "expenses"
	CollectionFuelings Collection = "fuelings"
	CollectionTaxonomy Collection = "taxonomy"
	CollectionUsers    Collection = "users"
)

// RecordCollections lists every collection stored as a Record, roots first.
var RecordCollections = []Collection{
	CollectionVehicles,
	CollectionTaxonomy,
	CollectionTrips,
	CollectionVisits,
	CollectionExpenses,
	CollectionFuelings,
}

// TripChildren are the collections owned by a trip through TripRef.
var TripChildren = []Collection{
	CollectionVisits,
	CollectionExpenses,
	CollectionFuelings,
}

// ParseCollection accepts a collection name or its singular form
// ("trip", "expense", "type").
func ParseCollection(s string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vehicle", "vehicles":
		return CollectionVehicles, nil
	case "trip", "trips":
		return CollectionTrips, nil
	case "visit", "visits":
		return CollectionVisits, nil
	case "expense", "expenses":
		return CollectionExpenses, nil
	case "fueling", "fuelings":
		return CollectionFuelings, nil
	case "type", "types", "taxonomy":
		return CollectionTaxonomy, nil
	case "user", "users":
		return CollectionUsers, nil
	}
	return "", fmt.Errorf("unknown collection %q", s)
}

// IsRecord reports whether c is stored as a Record (everything but users).
func (c Collection) IsRecord() bool {
	for _, rc := range RecordCollections {
		if rc == c {
			return true
		}
	}
	return false
}

// HasAttachment reports whether records of c may carry a binary attachment.
func (c Collection) HasAttachment() bool {
	return c == CollectionExpenses || c == CollectionFuelings
}

// IsTripChild reports whether records of c reference a trip.
func (c Collection) IsTripChild() bool {
	for _, tc := range TripChildren {
		if tc == c {
			return true
		}
	}
	return false
}

// SyncState is the reconciliation state of a record.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSynced  SyncState = "synced"
	StateError   SyncState = "error"
)

// Taxonomy kinds.
const (
	KindVisitType   = "visit_type"
	KindExpenseType = "expense_type"
)

// Record is the stored form of every synchronizable entity except users.
type Record struct {
	// LocalID is generated on the device and never changes.
	LocalID string
	// RemoteID is empty until the first successful remote create.
	RemoteID string

	State      SyncState
	Tombstoned bool

	TripRef    string
	VehicleRef string
	UserRef    string

	// Name and Kind are used by taxonomy entries.
	Name string
	Kind string

	// AttachmentURL and AttachmentPath describe the last reconciled remote blob.
	AttachmentURL  string
	AttachmentPath string
	// AttachmentData is a new local payload waiting for upload: raw bytes or
	// a data: URI.
	AttachmentData []byte
	// AttachmentRemoved is set when the user cleared the attachment and the
	// remote blob still has to be deleted.
	AttachmentRemoved bool

	// Payload holds the domain fields, opaque to the sync engine.
	Payload map[string]any

	// Revision is bumped on every local mutation.
	Revision int64

	LastError string
	Attempts  int
	UpdatedAt time.Time
}

// Synced reports whether r has a confirmed remote identity.
func (r *Record) Synced() bool {
	return r.State == StateSynced && r.RemoteID != "" && !r.Tombstoned
}

// SyncOutcome is what a sync pass writes back after a successful remote call.
type SyncOutcome struct {
	LocalID string
	// Revision is the revision the pass read before calling the remote.
	Revision       int64
	RemoteID       string
	AttachmentURL  string
	AttachmentPath string
}
