package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	return "other"
}

// ResolutionError reports that the page count of a shop could not be determined.
type ResolutionError struct {
	ShopID     string
	URL        string
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resolve page count for shop %s (status %d): %v", e.ShopID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("resolve page count for shop %s: %v", e.ShopID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ListingFetchError reports a listing page that could not be fetched or parsed.
type ListingFetchError struct {
	Page       int
	URL        string
	StatusCode int
	Err        error
}

func (e *ListingFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("listing page %d (status %d): %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("listing page %d: %v", e.Page, e.Err)
}

func (e *ListingFetchError) Unwrap() error {
	return e.Err
}

// ExtractionWarning is a non-fatal extraction problem.
type ExtractionWarning struct {
	Stage  string
	URL    string
	Detail string
}

func (e *ExtractionWarning) Error() string {
	return fmt.Sprintf("%s extraction warning for %s: %s", e.Stage, e.URL, e.Detail)
}

// DetailFetchError reports a product page that could not be fetched.
type DetailFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DetailFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch detail %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch detail %s: %v", e.URL, e.Err)
}

func (e *DetailFetchError) Unwrap() error {
	return e.Err
}

// DetailParseError reports a product page whose markup could not be parsed.
type DetailParseError struct {
	URL string
	Err error
}

func (e *DetailParseError) Error() string {
	return fmt.Sprintf("parse detail %s: %v", e.URL, e.Err)
}

func (e *DetailParseError) Unwrap() error {
	return e.Err
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := fmt.Errorf("http status %d", statusCode)
		if err != nil {
			wrapped = fmt.Errorf("http status %d: %w", statusCode, err)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusBadRequest || err != nil {
			return wrapped
		}
	}

	return err
}

// retryable reports whether a failed request may succeed when repeated.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return false
	}
	var notFound ErrNotFound
	return !errors.As(err, &notFound)
}
