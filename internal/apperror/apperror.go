// Package apperror gives the rest of the codebase one place to classify
// failures instead of re-deriving "is this worth retrying" from error
// strings at each call site, generalizing the inline classification the
// provider loop used to do by hand.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Kind names the cause of a failure. Provider failures carry a dotted
// "provider.<subkind>" form (e.g. "provider.rate_limited") so the broad
// Provider family groups under one prefix while still letting Retryable
// and UserFacing discriminate individual subkinds.
type Kind string

const (
	Config              Kind = "config"
	PermissionDenied    Kind = "permission_denied"
	PermissionNotFound  Kind = "permission_not_found"
	Storage             Kind = "storage"
	ProviderAuth        Kind = "provider.auth"
	ProviderRateLimited Kind = "provider.rate_limited"
	ProviderContextTooLong  Kind = "provider.context_too_long"
	ProviderContentFiltered Kind = "provider.content_filtered"
	ProviderInvalidRequest  Kind = "provider.invalid_request"
	ProviderModelUnavailable Kind = "provider.model_unavailable"
	ProviderServerError Kind = "provider.server_error"
	ProviderNetwork     Kind = "provider.network"
	ProviderParse       Kind = "provider.parse"
	McpNotFound         Kind = "mcp.not_found"
	McpConnection       Kind = "mcp.connection"
	ToolNotFound        Kind = "tool.not_found"
	ToolExecution       Kind = "tool.execution"
	Task                Kind = "task"
	Agent               Kind = "agent"
	Timeout             Kind = "timeout"
	Cancelled           Kind = "cancelled"
	NotFound            Kind = "not_found"
	InvalidInput        Kind = "invalid_input"
	Validation          Kind = "validation"
	Io                  Kind = "io"
	Json                Kind = "json"
	Internal            Kind = "internal"
	Unknown             Kind = "unknown"
)

var retryableKinds = map[Kind]bool{
	ProviderRateLimited: true,
	ProviderNetwork:     true,
	ProviderServerError: true,
	Timeout:             true,
	McpConnection:       true,
}

var userFacingKinds = map[Kind]bool{
	PermissionDenied: true,
	NotFound:         true,
	InvalidInput:     true,
	Validation:       true,
	Cancelled:        true,
}

// AppError wraps a cause with a Kind, letting callers classify a failure
// without string-matching the underlying error each time.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap builds an AppError of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is, or wraps, an *AppError;
// otherwise returns Unknown.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unknown
}

// Retryable reports whether a failure of this kind is worth retrying with
// backoff (base 1s, multiplier 2, max 30s, jitter +-20%%, default 3
// attempts) rather than surfacing immediately.
func (k Kind) Retryable() bool {
	return retryableKinds[k]
}

// UserFacing reports whether the message is safe to show the user
// directly, versus one that should be logged and replaced with a generic
// message.
func (k Kind) UserFacing() bool {
	return userFacingKinds[k]
}

// Classify derives a Kind from a provider error that hasn't already been
// wrapped in an AppError, by pattern-matching the status code and message
// text providers conventionally surface. It is a best-effort fallback for
// the boundary where a raw error crosses from a provider SDK into this
// codebase; providers that can identify their own failure should wrap it
// with New/Wrap directly instead of relying on this.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "invalid x-api-key"):
		return ProviderAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return ProviderRateLimited
	case strings.Contains(msg, "context length") || strings.Contains(msg, "context_length") || strings.Contains(msg, "maximum context") || strings.Contains(msg, "too long"):
		return ProviderContextTooLong
	case strings.Contains(msg, "content filter") || strings.Contains(msg, "content_filter") || strings.Contains(msg, "safety"):
		return ProviderContentFiltered
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") || strings.Contains(msg, "invalid_request"):
		return ProviderInvalidRequest
	case strings.Contains(msg, "model_not_found") || strings.Contains(msg, "model not found") || strings.Contains(msg, "does not exist"):
		return ProviderModelUnavailable
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "overloaded") || strings.Contains(msg, "internal server error"):
		return ProviderServerError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Timeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "eof") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "network"):
		return ProviderNetwork
	default:
		return Unknown
	}
}

// ToMessageError converts an error (an *AppError if classified, Unknown
// otherwise) into the wire-level MessageError the message/session types
// already carry.
func ToMessageError(err error) *types.MessageError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &types.MessageError{Type: string(ae.Kind), Message: ae.Error()}
	}
	return &types.MessageError{Type: string(Unknown), Message: err.Error()}
}
