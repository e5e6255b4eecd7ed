package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeBlocked represents a source that is currently blocked by us or by the site
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeAuth represents authentication or authorization failures
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeNotFound represents a missing page or resource
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePersistence represents storage failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeCancelled represents work abandoned because the job was cancelled
	ErrorTypeCancelled ErrorType = "cancelled"
)

// CrawlerError represents a crawler-specific error.
//
// Permanent is set explicitly by whoever creates the error. Callers never
// infer it from the message.
type CrawlerError struct {
	Type      ErrorType
	Provider  string
	Page      int
	Message   string
	Permanent bool
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Type, e.Provider)
	if e.Page > 0 {
		prefix = fmt.Sprintf("%s page %d", prefix, e.Page)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error may succeed when attempted again
func (e *CrawlerError) IsRetryable() bool {
	return !e.Permanent
}

// WithPage returns a copy of the error annotated with the page number
func (e *CrawlerError) WithPage(page int) *CrawlerError {
	cp := *e
	cp.Page = page
	return &cp
}

// New creates a new transient CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewPermanent creates a CrawlerError that must not be retried
func NewPermanent(errType ErrorType, provider, message string, err error) *CrawlerError {
	e := New(errType, provider, message, err)
	e.Permanent = true
	return e
}

// NewNetwork creates a new network error. Network errors are transient.
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return NewPermanent(ErrorTypeParsing, provider, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(provider string, duration time.Duration) *CrawlerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return NewPermanent(ErrorTypeRateLimit, provider, message, nil)
}

// NewBlocked creates an error for a source that is blocked for the remaining duration
func NewBlocked(provider string, remaining time.Duration) *CrawlerError {
	message := fmt.Sprintf("source blocked, retry after %v", remaining)
	return NewPermanent(ErrorTypeBlocked, provider, message, nil)
}

// NewAuth creates a new authentication error
func NewAuth(provider, message string) *CrawlerError {
	return NewPermanent(ErrorTypeAuth, provider, message, nil)
}

// NewNotFound creates a new not-found error
func NewNotFound(provider, message string) *CrawlerError {
	return NewPermanent(ErrorTypeNotFound, provider, message, nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePersistence, provider, message, err)
}

// NewValidation creates a new validation error
func NewValidation(provider, message string) *CrawlerError {
	return NewPermanent(ErrorTypeValidation, provider, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return NewPermanent(ErrorTypeConfiguration, "", message, err)
}

// NewCancelled creates an error for a source that was stopped by cancellation
func NewCancelled(provider string, err error) *CrawlerError {
	return NewPermanent(ErrorTypeCancelled, provider, "crawl cancelled", err)
}

// Permanent marks an arbitrary error as permanent. Adapters that do not build
// CrawlerErrors use this to opt out of retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		cp := *ce
		cp.Permanent = true
		return &cp
	}
	return &CrawlerError{Type: ErrorTypeNetwork, Message: "permanent failure", Permanent: true, Err: err, Time: time.Now()}
}

// IsPermanent reports whether err carries an explicit permanent marker.
// Errors without one are treated as transient.
func IsPermanent(err error) bool {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Permanent
	}
	return false
}

// TypeOf returns the ErrorType of err, or an empty string when err is not a CrawlerError
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}
