package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the type of error
type ErrorCategory string

const (
	// ErrorCategoryTemplate for template assets that cannot be decoded or lack a required alpha channel
	ErrorCategoryTemplate ErrorCategory = "template"
	// ErrorCategoryLayout for a required landmark missing from a frame
	ErrorCategoryLayout ErrorCategory = "layout"
	// ErrorCategoryAmbiguous for detections that do not produce the exact expected count
	ErrorCategoryAmbiguous ErrorCategory = "ambiguous"
	// ErrorCategoryLabel for replay requests naming an absent script label
	ErrorCategoryLabel ErrorCategory = "label"
	// ErrorCategoryFrame for frame source failures
	ErrorCategoryFrame ErrorCategory = "frame"
	// ErrorCategoryTouch for touch sink failures
	ErrorCategoryTouch ErrorCategory = "touch"
	// ErrorCategoryStorage for event log, database and S3 errors
	ErrorCategoryStorage ErrorCategory = "storage"
	// ErrorCategoryUnknown for uncategorized errors
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// Sentinels for errors.Is. A CategorizedError matches the sentinel of its category.
var (
	ErrTemplateLoad     = &CategorizedError{Category: ErrorCategoryTemplate, Message: "template load failed"}
	ErrLayoutNotFound   = &CategorizedError{Category: ErrorCategoryLayout, Message: "layout not found"}
	ErrAmbiguousMatch   = &CategorizedError{Category: ErrorCategoryAmbiguous, Message: "ambiguous match"}
	ErrLabelNotFound    = &CategorizedError{Category: ErrorCategoryLabel, Message: "label not found"}
	ErrFrameUnavailable = &CategorizedError{Category: ErrorCategoryFrame, Message: "frame unavailable"}
	ErrTouchFailed      = &CategorizedError{Category: ErrorCategoryTouch, Message: "touch command failed"}
	ErrStorage          = &CategorizedError{Category: ErrorCategoryStorage, Message: "storage failed"}
)

// CategorizedError wraps an error with category and retry info
type CategorizedError struct {
	Category  ErrorCategory
	Original  error
	Retryable bool
	Message   string
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("[%s] %s", e.Category, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Original)
}

// Unwrap implements error unwrapping
func (e *CategorizedError) Unwrap() error {
	return e.Original
}

// Is reports whether target is the sentinel for e's category.
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok || t.Original != nil {
		return false
	}
	return t.Category == e.Category
}

// NewTemplateLoadError creates a template asset error
func NewTemplateLoadError(path string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryTemplate,
		Original: err,
		Message:  fmt.Sprintf("load template %s", path),
	}
}

// NewLayoutNotFoundError creates an error for a missing landmark
func NewLayoutNotFoundError(landmark string) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryLayout,
		Message:  fmt.Sprintf("landmark %s not visible", landmark),
	}
}

// NewAmbiguousMatchError creates an error for an unexpected detection count
func NewAmbiguousMatchError(what string, want, got int) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryAmbiguous,
		Message:  fmt.Sprintf("expected %d %s, found %d", want, what, got),
	}
}

// NewLabelNotFoundError creates an error for a missing script label
func NewLabelNotFoundError(label string) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryLabel,
		Message:  fmt.Sprintf("no script entry labeled %q", label),
	}
}

// NewFrameError creates a frame source error
func NewFrameError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryFrame,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewTouchError creates a touch sink error
func NewTouchError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryTouch,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewStorageError creates a storage error
func NewStorageError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryStorage,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []ErrorCategory
}

// DefaultRetryConfig returns the retry defaults used by transport adapters
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []ErrorCategory{
			ErrorCategoryFrame,
			ErrorCategoryStorage,
		},
	}
}

// Retry executes a function with exponential backoff retry logic.
// Only transport adapters use it; detection, scanning and replay never retry.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err, config) {
			return err
		}

		if attempt < config.MaxAttempts-1 {
			delay := calculateDelay(attempt, config)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, config RetryConfig) bool {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) {
		// Unknown errors are not retryable by default
		return false
	}

	if !catErr.Retryable {
		return false
	}

	for _, category := range config.RetryableErrors {
		if catErr.Category == category {
			return true
		}
	}

	return false
}

// calculateDelay calculates retry delay with exponential backoff
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)

	for i := 0; i < attempt; i++ {
		delay *= config.BackoffFactor
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
