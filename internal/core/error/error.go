package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// InvocationErrorMessage describes a failed or timed out model, tool or provider call.
	InvocationErrorMessage = "external invocation failed"
	// ConfigurationErrorMessage describes an invalid run configuration.
	ConfigurationErrorMessage = "invalid configuration"
	// BudgetExhaustedMessage describes a reduction that could not keep a single message.
	BudgetExhaustedMessage = "history budget exhausted"
)

// Kind classifies an AppError so callers can branch without string matching.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindInvocation      Kind = "invocation"
	KindConfiguration   Kind = "configuration"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindStorage         Kind = "storage"
)

// ErrIterationLimit is returned when the converse/tools loop exceeds its cap.
var ErrIterationLimit = errors.New("tool iteration limit exceeded")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
	// Stage names the engine stage that produced the error, e.g. "converse" or "tools".
	Stage string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (%s)", e.Message, e.Stage)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Kind:    KindInternal,
	}
}

// Invocation marks err as a failure of a single external call made by stage.
func Invocation(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: InvocationErrorMessage,
		Kind:    KindInvocation,
		Stage:   stage,
	}
}

// Configuration reports a run configuration problem detected before any external call.
func Configuration(format string, args ...any) error {
	return &AppError{
		Err:     fmt.Errorf(format, args...),
		Status:  http.StatusBadRequest,
		Message: ConfigurationErrorMessage,
		Kind:    KindConfiguration,
	}
}

// BudgetExhausted reports a violated reduction floor.
func BudgetExhausted(format string, args ...any) error {
	return &AppError{
		Err:     fmt.Errorf(format, args...),
		Status:  http.StatusInternalServerError,
		Message: BudgetExhaustedMessage,
		Kind:    KindBudgetExhausted,
	}
}

// WrapRedis wraps a Redis error with a consistent status code and message.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: RedisErrorMessage,
		Kind:    KindStorage,
	}
}

// KindOf returns the Kind of the first AppError in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsInvocation reports whether err is an invocation failure.
func IsInvocation(err error) bool { return KindOf(err) == KindInvocation }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsBudgetExhausted reports whether err is a budget exhaustion error.
func IsBudgetExhausted(err error) bool { return KindOf(err) == KindBudgetExhausted }

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
