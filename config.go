package herald

import "time"

// Config holds the configuration for a Herald instance.
type Config struct {
	// Concurrency bounds the delivery attempts running for one dispatch.
	Concurrency int

	// RequestTimeout bounds each delivery attempt. Exceeding it counts as
	// a failed delivery.
	RequestTimeout time.Duration

	// DisableThreshold is the number of consecutive failed deliveries after
	// which an endpoint is deactivated.
	DisableThreshold int

	// ShutdownTimeout bounds how long Stop waits for in-flight deliveries
	// when its context carries no deadline.
	ShutdownTimeout time.Duration

	// RecordAttempts keeps a per-endpoint log of delivery attempts.
	RecordAttempts bool

	// RateLimiting enforces each endpoint's RateLimit.
	RateLimiting bool

	// LockStripes sizes the per-endpoint lock table.
	LockStripes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      10,
		RequestTimeout:   5 * time.Second,
		DisableThreshold: 10,
		ShutdownTimeout:  30 * time.Second,
		RecordAttempts:   true,
		RateLimiting:     true,
		LockStripes:      256,
	}
}
