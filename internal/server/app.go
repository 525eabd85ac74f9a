// Package server wires the reference TripKeeper server: Postgres record
// storage, S3 blobs, AMQP record events and the gRPC endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/blobs"
	"github.com/dmitrijs2005/tripkeeper/internal/server/config"
	"github.com/dmitrijs2005/tripkeeper/internal/server/events"
	"github.com/dmitrijs2005/tripkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/tripkeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/tripkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/tripkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	publisher events.Publisher
	records   *services.RecordService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate error: %w", err)
	}

	store, err := blobs.NewS3Store(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("s3 init error: %w", err)
	}

	pub := events.Nop()
	if c.AMQPURL != "" {
		p, err := events.DialAMQP(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		pub = p
	}

	rs := services.NewRecordService(records.NewPostgresRepository(db), store, pub, logger)

	return &App{config: c, logger: logger, db: db, publisher: pub, records: rs}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.records, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "shutdown", "error", err)
	}
}

func (app *App) Close() error {
	return errors.Join(app.publisher.Close(), app.db.Close())
}
