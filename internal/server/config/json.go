package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tripkeeper/internal/flagx"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

// JsonConfig is the JSON shape of Config. Durations use timex.Duration so
// both "15m" and integer nanoseconds are accepted. Absent fields keep their
// current value.
type JsonConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	PresignValidityDuration     *timex.Duration `json:"presign_validity_duration"`
	AMQPURL                     *string         `json:"amqp_url"`
	AMQPExchange                *string         `json:"amqp_exchange"`
	LogLevel                    *string         `json:"log_level"`
}

// parseJson loads the file named by -c or -config into config. Without the
// flag nothing is loaded. Read or decode errors panic.
func parseJson(config *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	for dst, v := range map[*string]*string{
		&config.EndpointAddrGRPC: c.EndpointAddrGRPC,
		&config.DatabaseDSN:      c.DatabaseDSN,
		&config.SecretKey:        c.SecretKey,
		&config.S3RootUser:       c.S3RootUser,
		&config.S3RootPassword:   c.S3RootPassword,
		&config.S3Bucket:         c.S3Bucket,
		&config.S3Region:         c.S3Region,
		&config.S3BaseEndpoint:   c.S3BaseEndpoint,
		&config.AMQPURL:          c.AMQPURL,
		&config.AMQPExchange:     c.AMQPExchange,
		&config.LogLevel:         c.LogLevel,
	} {
		if v != nil {
			*dst = *v
		}
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.PresignValidityDuration != nil {
		config.PresignValidityDuration = c.PresignValidityDuration.Duration
	}
}
