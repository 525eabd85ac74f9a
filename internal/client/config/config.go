package config

import "time"

// Config holds runtime settings for the TripKeeper client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the remote gRPC endpoint.
//   - DatabasePath: SQLite file of the local store.
//   - AccessToken: token sent with every remote call.
//   - OnlineCheckInterval: how often the client checks server reachability.
//   - SyncWorkers: records processed concurrently by a sync pass.
//   - RequestTimeout: per-call timeout of the remote adapter.
//   - LogFile, LogLevel: where and how verbosely the client logs.
type Config struct {
	ServerEndpointAddr  string
	DatabasePath        string
	AccessToken         string
	OnlineCheckInterval time.Duration
	SyncWorkers         int
	RequestTimeout      time.Duration
	LogFile             string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "tripkeeper.db"
	c.AccessToken = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncWorkers = 4
	c.RequestTimeout = 10 * time.Second
	c.LogFile = "tripkeeper.log"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
