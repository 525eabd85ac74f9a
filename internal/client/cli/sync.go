package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

// Sync runs a pass in the foreground. The outcome is reported by the
// notifier.
func (a *App) Sync(ctx context.Context, args []string) error {
	_, err := a.syncer.StartSync(ctx)
	return err
}

func (a *App) Status(ctx context.Context, args []string) error {
	a.printf("mode: %s\n", a.Mode())
	if u := a.currentUser(); u != nil {
		a.printf("user: %s <%s>\n", u.Username, u.Email)
	}

	pending := 0
	for _, c := range models.RecordCollections {
		recs, err := a.store.Records().GetAllPending(ctx, c)
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			a.printf("pending %s: %d\n", c, len(recs))
		}
		pending += len(recs)
	}
	users, err := a.store.Users().GetAllPending(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		a.printf("pending users: %d\n", len(users))
	}
	a.printf("pending total: %d\n", pending+len(users))

	if a.syncer.Running() {
		a.println("sync: running")
	}
	last, ok, err := a.syncer.LastSummary(ctx)
	if err != nil {
		return err
	}
	if ok {
		a.println(fmt.Sprintf("last sync %s at %s", last, last.FinishedAt.Format("2006-01-02 15:04:05")))
	} else {
		a.println("last sync: never")
	}
	return nil
}
