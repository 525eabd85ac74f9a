package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/tripkeeper/internal/client/client"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type call struct {
	op       string
	key      string
	remoteID string
	payload  map[string]any
}

// fakeRemote is an in-memory remote collection with idempotent creates.
type fakeRemote struct {
	mu     sync.Mutex
	prefix string
	seq    int
	docs   map[string]map[string]any
	byKey  map[string]string
	calls  []call

	createErr error
	updateErr error
	deleteErr error
	// before runs ahead of every remote write
	before func(ctx context.Context, op string)
}

func newFakeRemote(prefix string) *fakeRemote {
	return &fakeRemote{
		prefix: prefix,
		docs:   map[string]map[string]any{},
		byKey:  map[string]string{},
	}
}

func (f *fakeRemote) hook(ctx context.Context, op string) {
	f.mu.Lock()
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before(ctx, op)
	}
}

func (f *fakeRemote) Create(ctx context.Context, key string, payload map[string]any) (string, error) {
	f.hook(ctx, "create")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "create", key: key, payload: payload})
	if f.createErr != nil {
		return "", f.createErr
	}
	if id, ok := f.byKey[key]; ok {
		f.docs[id] = payload
		return id, nil
	}
	f.seq++
	id := fmt.Sprintf("%s-%d", f.prefix, 100*f.seq)
	f.byKey[key] = id
	f.docs[id] = payload
	return id, nil
}

func (f *fakeRemote) Update(ctx context.Context, remoteID string, payload map[string]any) error {
	f.hook(ctx, "update")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "update", remoteID: remoteID, payload: payload})
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.docs[remoteID]; !ok {
		return common.ErrorNotFound
	}
	f.docs[remoteID] = payload
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, remoteID string) error {
	f.hook(ctx, "delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "delete", remoteID: remoteID})
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[remoteID]; !ok {
		return common.ErrorNotFound
	}
	delete(f.docs, remoteID)
	return nil
}

func (f *fakeRemote) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeRemote) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeRemotes map[models.Collection]*fakeRemote

func newFakeRemotes() fakeRemotes {
	return fakeRemotes{
		models.CollectionUsers:    newFakeRemote("U"),
		models.CollectionVehicles: newFakeRemote("V"),
		models.CollectionTaxonomy: newFakeRemote("X"),
		models.CollectionTrips:    newFakeRemote("T"),
		models.CollectionVisits:   newFakeRemote("S"),
		models.CollectionExpenses: newFakeRemote("E"),
		models.CollectionFuelings: newFakeRemote("F"),
	}
}

func (r fakeRemotes) Remote(c models.Collection) client.RemoteAdapter { return r[c] }

type fakeBlobs struct {
	mu        sync.Mutex
	seq       int
	blobs     map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}}
}

func (b *fakeBlobs) Upload(_ context.Context, data []byte, folder string) (client.Blob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return client.Blob{}, b.uploadErr
	}
	b.seq++
	path := fmt.Sprintf("%s/%d", folder, b.seq)
	b.blobs[path] = append([]byte(nil), data...)
	return client.Blob{URL: "https://blobs.test/" + path, Path: path}, nil
}

func (b *fakeBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, path)
	delete(b.blobs, path)
	return nil
}

func (b *fakeBlobs) has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[path]
	return ok
}

type fakeConn struct{ offline atomic.Bool }

func (c *fakeConn) Online(context.Context) bool { return !c.offline.Load() }

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) kinds() []NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}
