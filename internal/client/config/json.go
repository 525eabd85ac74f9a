package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals are
// timex.Duration so they may be written as "3s" or as nanoseconds. Absent
// fields leave the current value untouched.
type JsonConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr"`
	DatabasePath        *string         `json:"database_path"`
	AccessToken         *string         `json:"access_token"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncWorkers         *int            `json:"sync_workers"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	LogFile             *string         `json:"log_file"`
	LogLevel            *string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the file named by -c or
// -config. Without such a flag nothing happens. Read and decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SyncWorkers != nil {
		cfg.SyncWorkers = *jc.SyncWorkers
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
