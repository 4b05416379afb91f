package storage

import (
	"strings"
	"time"
)

// Config holds the object storage connection used in object transfer mode.
type Config struct {
	// Endpoint is host:port of the S3 compatible service. A scheme prefix is accepted;
	// https:// turns TLS on.
	Endpoint  string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	UseSSL    bool   `mapstructure:"use_ssl" default:"false"`
	Region    string `mapstructure:"region" default:""`
	// TimeoutSeconds bounds dialing, TLS handshakes and the first response byte.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// Timeout returns the transport timeout, 30s when unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// host strips the scheme from Endpoint and reports whether TLS is required.
func (c Config) host() (string, bool) {
	switch {
	case strings.HasPrefix(c.Endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(c.Endpoint, "https://"), "/"), true
	case strings.HasPrefix(c.Endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(c.Endpoint, "http://"), "/"), c.UseSSL
	default:
		return strings.TrimSuffix(c.Endpoint, "/"), c.UseSSL
	}
}
