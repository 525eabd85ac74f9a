package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-t", "-i", "-w", "-r", "-l", "-log-level"}

// parseFlags populates Config fields from command-line flags. Only the flags
// in knownFlags are looked at, so -c/-config and server flags do not clash.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database file")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.IntVar(&cfg.SyncWorkers, "w", cfg.SyncWorkers, "concurrent sync workers")
	fs.DurationVar(&cfg.RequestTimeout, "r", cfg.RequestTimeout, "remote request timeout")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
