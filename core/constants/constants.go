package constants

import "time"

const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 10
	DatabaseConnMaxLifetime = 30 // minutes

	DefaultTimeout       = 30 * time.Second
	ProviderHTTPTimeout  = 30 * time.Second
	TokenRefreshMargin   = 5 * time.Minute
	ShutdownGracePeriod  = 15 * time.Second
	WebhookMaxBodyBytes  = int64(65536) // largest event Stripe sends
	DefaultPageSize      = 20
	MaxPageSize          = 100
	DefaultClassCapacity = 8

	ContextClaimsKey = "claims"

	RoleAdmin      = "admin"
	RoleStudio     = "studio"
	RoleInstructor = "instructor"
)
