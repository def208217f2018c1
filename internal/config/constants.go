package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Outbound request timeouts
const (
	ProvisionTimeout = 10 * time.Second
	PollTimeout      = 5 * time.Second
)

// Store ping timeout for health checks
const StorePingTimeout = 5 * time.Second

// Largest accepted request body. Kiosk requests carry at most a text turn
// or one wishlist offer.
const MaxRequestBodySize = 1 << 20

// Background job intervals
const IdleCheckInterval = 30 * time.Second
