package yoto

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies API failures so the pipeline can decide what is retryable.
type Kind int

const (
	KindGeneric Kind = iota
	KindAuth
	KindRateLimited
	KindNotFound
	KindValidation
	KindTimeout
	KindNetwork
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "api"
	}
}

// APIError is a typed Yoto API failure.
type APIError struct {
	Kind       Kind
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("yoto %s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("yoto %s error: %s", e.Kind, e.Message)
}

// KindOf extracts the failure kind from err, or KindGeneric for foreign errors.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindGeneric
}

func statusError(status int, message string, retryAfter time.Duration) *APIError {
	kind := KindGeneric
	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 404:
		kind = KindNotFound
	case status == 422 || status == 400:
		kind = KindValidation
	case status == 429:
		kind = KindRateLimited
	case status >= 500:
		kind = KindServer
	}
	return &APIError{Kind: kind, Status: status, Message: message, RetryAfter: retryAfter}
}
