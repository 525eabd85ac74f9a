package syncer

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

// Resolver maps a child's parent reference to the parent's remote id.
// It always reads the store; nothing is cached between calls.
type Resolver struct {
	repos store.Repositories
}

func NewResolver(repos store.Repositories) *Resolver {
	return &Resolver{repos: repos}
}

// Resolve returns the remote id of the parent named by ref in collection
// parent. ref may be a local id (resolved only when the parent is synced,
// has a remote id and is not tombstoned) or a remote id already, which is
// returned as is. ok is false when the parent is not sync-eligible.
func (r *Resolver) Resolve(ctx context.Context, parent models.Collection, ref string) (string, bool, error) {
	if ref == "" {
		return "", false, nil
	}
	if parent == models.CollectionUsers {
		return r.resolveUser(ctx, ref)
	}

	rec, err := r.repos.Records().Get(ctx, parent, ref)
	switch {
	case err == nil:
		if rec.Synced() {
			return rec.RemoteID, true, nil
		}
		return "", false, nil
	case !errors.Is(err, common.ErrorNotFound):
		return "", false, err
	}

	rec, err = r.repos.Records().FindByRemoteID(ctx, parent, ref)
	switch {
	case err == nil:
		return ref, !rec.Tombstoned, nil
	case errors.Is(err, common.ErrorNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (r *Resolver) resolveUser(ctx context.Context, ref string) (string, bool, error) {
	u, err := r.repos.Users().Get(ctx, common.NormalizeEmail(ref))
	switch {
	case err == nil:
		if u.Synced() {
			return u.RemoteID, true, nil
		}
		return "", false, nil
	case !errors.Is(err, common.ErrorNotFound):
		return "", false, err
	}

	u, err = r.repos.Users().FindByRemoteID(ctx, ref)
	switch {
	case err == nil:
		return ref, !u.Tombstoned, nil
	case errors.Is(err, common.ErrorNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}
