package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

type NoticeKind string

const (
	// NoticeFinished carries the summary of a completed pass.
	NoticeFinished NoticeKind = "finished"
	// NoticeRejected means no pass was started (already running, offline).
	NoticeRejected NoticeKind = "rejected"
	// NoticeAborted means a local store failure stopped the pass.
	NoticeAborted NoticeKind = "aborted"
)

// Notice is a user-facing message about a sync pass.
type Notice struct {
	Kind    NoticeKind
	Summary models.Summary
	Err     error
}

func (n Notice) String() string {
	switch n.Kind {
	case NoticeFinished:
		return "sync " + n.Summary.String()
	case NoticeRejected:
		return fmt.Sprintf("sync not started: %v", n.Err)
	default:
		return fmt.Sprintf("sync aborted: %v", n.Err)
	}
}

// Notifier delivers notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) {}
