package helpers

import (
	"fmt"
	"sync/atomic"
	"time"

	"market-feed/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketFeedError struct {
	Message string
	Cause   error
}

func (e *MarketFeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketFeedError) Unwrap() error {
	return e.Cause
}

// Failure taxonomy. Each failure is scoped to the smallest unit that caused
// it: one message (Validation), one write (Storage), one tick (Generation).
type ConfigurationError struct{ MarketFeedError }
type ValidationError struct{ MarketFeedError }
type StorageError struct{ MarketFeedError }
type GenerationError struct{ MarketFeedError }

// -----------------------------------------------------------------------------

func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{MarketFeedError{Message: message, Cause: cause}}
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{MarketFeedError{Message: fmt.Sprintf(format, args...)}}
}

func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{MarketFeedError{Message: message, Cause: cause}}
}

func NewGenerationError(message string, cause error) *GenerationError {
	return &GenerationError{MarketFeedError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return nil, lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler is shared across every update-loop goroutine, so the
// counter is atomic.
type ErrorHandler struct {
	Logger     *logger.Logger
	errorCount atomic.Int64
}

func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		Logger: logger.NewLogger(nil, "ErrorHandler"),
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ErrorCount() int64 {
	return e.errorCount.Load()
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ResetErrorCount() {
	e.errorCount.Store(0)
}

// -----------------------------------------------------------------------------

// Handle reports an error through the observability channel. No error is
// ever fatal: failures are logged and the caller keeps scheduling.
func (e *ErrorHandler) Handle(err error, context string) {
	if err != nil {
		e.errorCount.Add(1)
		e.Logger.Error("Error in %s: %v", context, err)
	}
}
