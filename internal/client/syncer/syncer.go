// Package syncer drains locally pending work against the remote store.
//
// A pass walks the collections in dependency order (users, vehicles,
// taxonomy, trips, then trip children grouped by trip). Each record is
// re-read before it is processed and owned by exactly one goroutine; its
// outcome is written back with a revision compare-and-set so that a local
// edit racing the remote call keeps the record pending. Per-record remote
// failures mark the record as error and the pass moves on; only local store
// failures abort it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/client"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Options tune a Syncer. Zero values select defaults.
type Options struct {
	// Workers bounds the records processed concurrently.
	Workers  int
	Notifier Notifier
	Logger   logging.Logger
}

// Syncer is the sync orchestrator.
type Syncer struct {
	repos    store.Handle
	remotes  client.Remotes
	conn     client.Connectivity
	resolver *Resolver
	attach   *AttachmentManager
	notifier Notifier
	log      logging.Logger
	workers  int
	now      func() time.Time

	running atomic.Bool
}

func New(repos store.Handle, remotes client.Remotes, blobs client.BlobStore, conn client.Connectivity, opts Options) *Syncer {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	s := &Syncer{
		repos:    repos,
		remotes:  remotes,
		conn:     conn,
		resolver: NewResolver(repos),
		attach:   NewAttachmentManager(blobs, log),
		notifier: opts.Notifier,
		log:      log.With("module", "syncer"),
		workers:  opts.Workers,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	return s
}

// Running reports whether a pass is in progress.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

type outcome int

const (
	synced outcome = iota
	errored
	skipped
)

type tally struct {
	mu sync.Mutex
	models.Summary
}

func (t *tally) add(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case synced:
		t.Synced++
	case errored:
		t.Errored++
	case skipped:
		t.Skipped++
	}
}

// StartSync runs one pass. It returns common.ErrSyncInProgress when a pass
// is already running and common.ErrOffline when the remote is unreachable;
// neither starts a pass. A local store failure aborts the pass with an error
// wrapping common.ErrLocalStore. Remote failures never fail StartSync.
func (s *Syncer) StartSync(ctx context.Context) (models.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.notifier.Notify(ctx, Notice{Kind: NoticeRejected, Err: common.ErrSyncInProgress})
		return models.Summary{}, common.ErrSyncInProgress
	}
	defer s.running.Store(false)

	// the pass holds the store so a concurrent Close waits for it
	if err := s.repos.Acquire(); err != nil {
		s.notifier.Notify(ctx, Notice{Kind: NoticeAborted, Err: err})
		return models.Summary{}, err
	}
	defer func() {
		if err := s.repos.Release(); err != nil {
			s.log.Warn(ctx, "store release failed", "error", err)
		}
	}()

	if !s.conn.Online(ctx) {
		s.notifier.Notify(ctx, Notice{Kind: NoticeRejected, Err: common.ErrOffline})
		return models.Summary{}, common.ErrOffline
	}

	t := &tally{}
	t.StartedAt = s.now()
	s.log.Info(ctx, "sync pass started")

	if err := s.pass(ctx, t); err != nil {
		t.Finish(s.now())
		s.log.Error(ctx, "sync pass aborted", "error", err)
		s.notifier.Notify(ctx, Notice{Kind: NoticeAborted, Summary: t.Summary, Err: err})
		return t.Summary, err
	}

	t.Finish(s.now())
	if err := s.persist(ctx, t.Summary); err != nil {
		s.notifier.Notify(ctx, Notice{Kind: NoticeAborted, Summary: t.Summary, Err: err})
		return t.Summary, err
	}

	s.log.Info(ctx, "sync pass finished",
		"status", t.Status, "synced", t.Synced, "errored", t.Errored,
		"skipped", t.Skipped, "total", t.Total, "collected", t.Collected)
	s.notifier.Notify(ctx, Notice{Kind: NoticeFinished, Summary: t.Summary})
	return t.Summary, nil
}

func (s *Syncer) pass(ctx context.Context, t *tally) error {
	users, err := s.repos.Users().GetAllPending(ctx)
	if err != nil {
		return err
	}
	pending := make(map[models.Collection][]*models.Record, len(models.RecordCollections))
	for _, c := range models.RecordCollections {
		recs, err := s.repos.Records().GetAllPending(ctx, c)
		if err != nil {
			return err
		}
		pending[c] = recs
		t.Total += len(recs)
	}
	t.Total += len(users)

	// users first: trips reference them
	userJobs := make([]func(context.Context) error, 0, len(users))
	for _, u := range users {
		email := u.Email
		userJobs = append(userJobs, func(ctx context.Context) error {
			o, err := s.processUser(ctx, email)
			t.add(o)
			return err
		})
	}
	if err := s.run(ctx, userJobs); err != nil {
		return err
	}

	for _, c := range []models.Collection{models.CollectionVehicles, models.CollectionTaxonomy, models.CollectionTrips} {
		jobs := make([]func(context.Context) error, 0, len(pending[c]))
		for _, rec := range pending[c] {
			c, id := c, rec.LocalID
			jobs = append(jobs, func(ctx context.Context) error {
				o, err := s.processRecord(ctx, c, id)
				t.add(o)
				return err
			})
		}
		if err := s.run(ctx, jobs); err != nil {
			return err
		}
	}

	// children of different trips are independent branches
	type item struct {
		c  models.Collection
		id string
	}
	byTrip := make(map[string][]item)
	var order []string
	for _, c := range models.TripChildren {
		for _, rec := range pending[c] {
			if _, ok := byTrip[rec.TripRef]; !ok {
				order = append(order, rec.TripRef)
			}
			byTrip[rec.TripRef] = append(byTrip[rec.TripRef], item{c: c, id: rec.LocalID})
		}
	}
	jobs := make([]func(context.Context) error, 0, len(order))
	for _, trip := range order {
		items := byTrip[trip]
		jobs = append(jobs, func(ctx context.Context) error {
			for _, it := range items {
				o, err := s.processRecord(ctx, it.c, it.id)
				t.add(o)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := s.run(ctx, jobs); err != nil {
		return err
	}

	n, err := s.collectGarbage(ctx)
	t.Collected = n
	return err
}

// run executes jobs concurrently with the worker limit. The first error
// stops the remaining jobs.
func (s *Syncer) run(ctx context.Context, jobs []func(context.Context) error) error {
	if len(jobs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, job := range jobs {
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}

func (s *Syncer) processRecord(ctx context.Context, c models.Collection, localID string) (outcome, error) {
	rec, err := s.repos.Records().Get(ctx, c, localID)
	if errors.Is(err, common.ErrorNotFound) {
		return skipped, nil
	}
	if err != nil {
		return skipped, err
	}
	if rec.State == models.StateSynced {
		return synced, nil
	}

	log := s.log.With("collection", c, "local_id", localID)
	remote := s.remotes.Remote(c)

	if rec.Tombstoned {
		if rec.RemoteID != "" {
			if err := remote.Delete(ctx, rec.RemoteID); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return s.fail(ctx, c, rec, "remote delete", err)
			}
		}
		s.attach.Discard(ctx, rec.AttachmentPath)
		return s.markSynced(ctx, c, models.SyncOutcome{
			LocalID:        rec.LocalID,
			Revision:       rec.Revision,
			RemoteID:       rec.RemoteID,
			AttachmentURL:  rec.AttachmentURL,
			AttachmentPath: rec.AttachmentPath,
		})
	}

	refs, ok, err := s.resolveParents(ctx, c, rec)
	if err != nil {
		return skipped, err
	}
	if !ok {
		log.Debug(ctx, "parent not synced yet, skipping")
		return skipped, nil
	}

	var plan *AttachmentPlan
	if c.HasAttachment() {
		plan, err = s.attach.Reconcile(ctx, rec, string(c))
		if err != nil {
			return s.fail(ctx, c, rec, "attachment upload", err)
		}
	} else {
		plan = &AttachmentPlan{URL: rec.AttachmentURL, Path: rec.AttachmentPath}
	}

	payload := remotePayload(c, rec, refs, plan)
	remoteID := rec.RemoteID
	if remoteID == "" {
		remoteID, err = remote.Create(ctx, rec.LocalID, payload)
		if err == nil && remoteID == "" {
			err = fmt.Errorf("%w: empty remote id", common.ErrValidation)
		}
	} else {
		err = remote.Update(ctx, remoteID, payload)
	}
	if err != nil {
		plan.Rollback(ctx)
		return s.fail(ctx, c, rec, "remote write", err)
	}
	plan.Commit(ctx)

	return s.markSynced(ctx, c, models.SyncOutcome{
		LocalID:        rec.LocalID,
		Revision:       rec.Revision,
		RemoteID:       remoteID,
		AttachmentURL:  plan.URL,
		AttachmentPath: plan.Path,
	})
}

func (s *Syncer) markSynced(ctx context.Context, c models.Collection, out models.SyncOutcome) (outcome, error) {
	ok, err := s.repos.Records().MarkSynced(ctx, c, out)
	if errors.Is(err, common.ErrorNotFound) {
		return skipped, nil
	}
	if err != nil {
		return skipped, err
	}
	if !ok {
		s.log.Debug(ctx, "record changed during sync, left pending", "collection", c, "local_id", out.LocalID)
		return skipped, nil
	}
	return synced, nil
}

func (s *Syncer) fail(ctx context.Context, c models.Collection, rec *models.Record, op string, cause error) (outcome, error) {
	s.log.Warn(ctx, "record sync failed", "collection", c, "local_id", rec.LocalID, "op", op, "error", cause)
	if err := s.repos.Records().MarkFailed(ctx, c, rec.LocalID, op+": "+cause.Error()); err != nil {
		return errored, err
	}
	return errored, nil
}

type parentRefs struct {
	vehicle string
	trip    string
	user    string
}

// resolveParents reports ok=false when a parent the record references has
// no remote identity yet.
func (s *Syncer) resolveParents(ctx context.Context, c models.Collection, rec *models.Record) (parentRefs, bool, error) {
	var refs parentRefs
	need := func(parent models.Collection, ref string, dst *string, required bool) (bool, error) {
		if ref == "" {
			return !required, nil
		}
		id, ok, err := s.resolver.Resolve(ctx, parent, ref)
		if err != nil || !ok {
			return false, err
		}
		*dst = id
		return true, nil
	}

	var checks []func() (bool, error)
	switch c {
	case models.CollectionTrips:
		checks = append(checks,
			func() (bool, error) { return need(models.CollectionVehicles, rec.VehicleRef, &refs.vehicle, true) },
			func() (bool, error) { return need(models.CollectionUsers, rec.UserRef, &refs.user, false) },
		)
	case models.CollectionVisits, models.CollectionExpenses:
		checks = append(checks,
			func() (bool, error) { return need(models.CollectionTrips, rec.TripRef, &refs.trip, true) },
		)
	case models.CollectionFuelings:
		checks = append(checks,
			func() (bool, error) { return need(models.CollectionTrips, rec.TripRef, &refs.trip, true) },
			func() (bool, error) { return need(models.CollectionVehicles, rec.VehicleRef, &refs.vehicle, false) },
		)
	}
	for _, check := range checks {
		ok, err := check()
		if err != nil || !ok {
			return refs, false, err
		}
	}
	return refs, true, nil
}

// remotePayload is the document sent to the remote: the domain payload plus
// resolved references and reconciled attachment fields.
func remotePayload(c models.Collection, rec *models.Record, refs parentRefs, plan *AttachmentPlan) map[string]any {
	p := make(map[string]any, len(rec.Payload)+6)
	for k, v := range rec.Payload {
		p[k] = v
	}
	p["localId"] = rec.LocalID

	switch c {
	case models.CollectionTrips:
		p["vehicleRef"] = refs.vehicle
		if refs.user != "" {
			p["userRef"] = refs.user
		}
	case models.CollectionVisits, models.CollectionExpenses:
		p["tripRef"] = refs.trip
	case models.CollectionFuelings:
		p["tripRef"] = refs.trip
		if refs.vehicle != "" {
			p["vehicleRef"] = refs.vehicle
		}
	case models.CollectionTaxonomy:
		p["kind"] = rec.Kind
		p["name"] = rec.Name
	}

	if c.HasAttachment() {
		p["attachmentUrl"] = nullable(plan.URL)
		p["attachmentPath"] = nullable(plan.Path)
	}
	return p
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Syncer) processUser(ctx context.Context, email string) (outcome, error) {
	u, err := s.repos.Users().Get(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return skipped, nil
	}
	if err != nil {
		return skipped, err
	}
	if u.State == models.StateSynced {
		return synced, nil
	}

	remote := s.remotes.Remote(models.CollectionUsers)
	remoteID := u.RemoteID

	switch {
	case u.Tombstoned && remoteID != "":
		err = remote.Delete(ctx, remoteID)
		if errors.Is(err, common.ErrorNotFound) {
			err = nil
		}
	case u.Tombstoned:
	case remoteID == "":
		remoteID, err = remote.Create(ctx, u.Email, userPayload(u))
		if err == nil && remoteID == "" {
			err = fmt.Errorf("%w: empty remote id", common.ErrValidation)
		}
	default:
		err = remote.Update(ctx, remoteID, userPayload(u))
	}
	if err != nil {
		s.log.Warn(ctx, "user sync failed", "email", u.Email, "error", err)
		if err := s.repos.Users().MarkFailed(ctx, u.Email, err.Error()); err != nil {
			return errored, err
		}
		return errored, nil
	}

	ok, err := s.repos.Users().MarkSynced(ctx, u.Email, u.Revision, remoteID)
	if errors.Is(err, common.ErrorNotFound) {
		return skipped, nil
	}
	if err != nil {
		return skipped, err
	}
	if !ok {
		return skipped, nil
	}
	return synced, nil
}

func userPayload(u *models.User) map[string]any {
	return map[string]any{
		"email":    u.Email,
		"username": u.Username,
		"role":     u.Role,
	}
}

// collectGarbage physically deletes every synced tombstone.
func (s *Syncer) collectGarbage(ctx context.Context) (int, error) {
	n := 0
	for _, c := range models.RecordCollections {
		recs, err := s.repos.Records().GetSyncedTombstones(ctx, c)
		if err != nil {
			return n, err
		}
		for _, rec := range recs {
			if err := s.repos.Records().DeletePhysically(ctx, c, rec.LocalID); err != nil {
				return n, err
			}
			n++
		}
	}
	users, err := s.repos.Users().GetSyncedTombstones(ctx)
	if err != nil {
		return n, err
	}
	for _, u := range users {
		if err := s.repos.Users().DeletePhysically(ctx, u.Email); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Syncer) persist(ctx context.Context, sum models.Summary) error {
	if err := metadata.SetJSON(ctx, s.repos.Metadata(), metadata.KeyLastSummary, sum); err != nil {
		return err
	}
	return s.repos.Metadata().Set(ctx, metadata.KeyLastSyncAt, []byte(sum.FinishedAt.Format(time.RFC3339Nano)))
}

// LastSummary returns the summary of the last completed pass, if any.
func (s *Syncer) LastSummary(ctx context.Context) (models.Summary, bool, error) {
	var sum models.Summary
	ok, err := metadata.GetJSON(ctx, s.repos.Metadata(), metadata.KeyLastSummary, &sum)
	return sum, ok, err
}
