package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tripkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/tripkeeper/internal/client/cli"
	"github.com/dmitrijs2005/tripkeeper/internal/client/config"
	"github.com/dmitrijs2005/tripkeeper/internal/filex"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()

	logFile, err := filex.OpenAppend(cfg.LogFile)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer logFile.Close()
	logger := logging.NewJSONLogger(logFile, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	app.Run(ctx)
}
