// Package config loads runtime configuration for the TripKeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string          address:port of the remote gRPC endpoint
//	-d string          local database file
//	-t string          access token
//	-i duration        online status check interval
//	-w int             concurrent sync workers
//	-r duration        remote request timeout
//	-l string          log file
//	-log-level string  debug, info, warn or error
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_path": "tripkeeper.db",
//	  "access_token": "eyJ...",
//	  "online_check_interval": "3s",
//	  "sync_workers": 4,
//	  "request_timeout": "10s",
//	  "log_file": "tripkeeper.log",
//	  "log_level": "info"
//	}
package config
