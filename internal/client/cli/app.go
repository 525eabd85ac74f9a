package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/client"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Backend is the remote side of the client.
type Backend interface {
	client.Remotes
	client.BlobStore
	client.Connectivity
	Close() error
}

type App struct {
	config  *config.Config
	store   *store.Store
	backend Backend
	records *services.RecordService
	users   *services.UserService
	syncer  *syncer.Syncer
	log     logging.Logger

	reader *bufio.Reader
	out    io.Writer

	mu      sync.Mutex
	mode    Mode
	current *models.User
}

// NewApp opens the local store and connects the gRPC backend described by c.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	st, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	be, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken, client.Options{Timeout: c.RequestTimeout}, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return newApp(ctx, c, st, be, log, os.Stdin, os.Stdout), nil
}

func newApp(ctx context.Context, c *config.Config, st *store.Store, be Backend, log logging.Logger, in io.Reader, out io.Writer) *App {
	if log == nil {
		log = logging.Nop()
	}
	a := &App{
		config:  c,
		store:   st,
		backend: be,
		records: services.NewRecordService(st, log),
		users:   services.NewUserService(st, log),
		log:     log.With("module", "cli"),
		reader:  bufio.NewReader(in),
		out:     out,
		mode:    ModeOffline,
	}
	a.syncer = syncer.New(st, be, be, be, syncer.Options{
		Workers:  c.SyncWorkers,
		Notifier: syncer.NotifierFunc(a.notify),
		Logger:   log,
	})
	if u, err := a.users.Current(ctx); err == nil {
		a.current = u
	}
	return a
}

// Close waits for an in-flight sync pass, closes the local store and then the backend connection.
func (a *App) Close() error {
	return errors.Join(a.store.Close(), a.backend.Close())
}

// Run starts the connectivity watcher and the REPL. It returns when the
// user exits or input ends.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.println("Welcome to TripKeeper (type 'help' for commands)")
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) notify(_ context.Context, n syncer.Notice) {
	a.println(n.String())
}

func (a *App) println(args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// setMode reports whether the mode changed.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.log.Info(context.Background(), "connectivity changed", "mode", mode)
	}
	return changed
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := ""
	if a.current != nil {
		s = a.current.Username + " "
	}
	return fmt.Sprintf("(%s%s)", s, a.mode)
}

func (a *App) setCurrent(u *models.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = u
}

func (a *App) currentUser() *models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// StartOnlineStatusWatcher pings the backend every interval until ctx is
// done. Regaining connectivity starts a background sync pass.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	online := a.backend.Online(pctx)
	cancel()

	if !online {
		a.setMode(ModeOffline)
		return
	}
	if a.setMode(ModeOnline) {
		go a.backgroundSync(ctx)
	}
}

func (a *App) backgroundSync(ctx context.Context) {
	_, err := a.syncer.StartSync(ctx)
	if err != nil && !errors.Is(err, common.ErrSyncInProgress) && !errors.Is(err, common.ErrOffline) {
		a.log.Error(ctx, "background sync failed", "error", err)
	}
}
