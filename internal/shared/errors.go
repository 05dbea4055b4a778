package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// Session and pipeline errors
	ErrSessionNotFound = fmt.Errorf("upload session not found")
	ErrFileNotFound    = fmt.Errorf("file not found in session")
	ErrSessionStopped  = fmt.Errorf("upload stopped by user")
	ErrNoProvider      = fmt.Errorf("no provider registered for scheme")
	ErrMissingTempFile = fmt.Errorf("temp file missing")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
