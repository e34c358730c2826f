package api

import "time"

// ServerConfig represents the API listener configuration.
type ServerConfig struct {
	Addr           string        `help:"API server listen address" default:":3243" env:"QRSCAN_API_ADDR"`
	RequestTimeout time.Duration `help:"Time allowed for a client to send its request frame" default:"10s" env:"QRSCAN_API_REQUEST_TIMEOUT"`
	MaxRequestSize int           `help:"Largest accepted request frame in bytes (0 uses the sealed frame limit)" default:"33554432" env:"QRSCAN_API_MAX_REQUEST_SIZE"`
	RateLimit      float64       `help:"Accepted requests per second across all clients (0 disables limiting)" default:"20" env:"QRSCAN_API_RATE_LIMIT"`
	RateBurst      int           `help:"Request burst allowed above the rate limit" default:"40" env:"QRSCAN_API_RATE_BURST"`
	RequireAuth    bool          `help:"Require password authentication from non-loopback clients" default:"true" negatable:"" env:"QRSCAN_API_REQUIRE_AUTH"`
	Password       string        `kong:"-"`
}
