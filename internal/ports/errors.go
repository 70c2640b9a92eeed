package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Source Errors
	ErrSourceUnavailable = errors.New("market data source is unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to the market data source")
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrNoData            = errors.New("market data source returned no data")

	// Transport Errors
	ErrTransport = errors.New("event transport error")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
