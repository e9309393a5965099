package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background history-retention job interval
const CleanupJobInterval = 1 * time.Hour

// Bounded timeout for free/busy calendar queries; a slow calendar must not
// stall the webhook path past the point where a generic answer is better.
const CalendarQueryTimeout = 8 * time.Second

// Appointment slot granularity
const SlotDuration = 60 * time.Minute

// Rate limiting for webhook and admin endpoints (per client IP, per minute)
const DefaultRateLimitPerMin = 60
