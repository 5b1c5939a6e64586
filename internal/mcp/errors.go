// Package mcp exposes wiki search and index maintenance over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeGenerationNotFound indicates the requested generation does not exist.
	ErrCodeGenerationNotFound = -32001

	// ErrCodeIndexUnavailable indicates the search service could not be reached.
	ErrCodeIndexUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeJobRunning indicates a rebuild is already queued or running.
	ErrCodeJobRunning = -32004

	// ErrCodeJobNotFound indicates an unknown job id.
	ErrCodeJobNotFound = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if appErr, ok := apperrors.As(err); ok {
		return mapAppError(appErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapAppError(ae *apperrors.AppError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s (%s)", ae.Message, ae.Suggestion)
	}

	// Specific codes first, then the category.
	switch ae.Code {
	case apperrors.ErrCodeGenerationNotFound:
		return &MCPError{Code: ErrCodeGenerationNotFound, Message: message}
	case apperrors.ErrCodeJobRunning:
		return &MCPError{Code: ErrCodeJobRunning, Message: message}
	case apperrors.ErrCodeIndexTimeout, apperrors.ErrCodeSoftTimeLimit:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch ae.Category {
	case apperrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case apperrors.CategoryIndex:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
