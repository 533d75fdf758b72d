package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// VeiError is a structured error type with context.
type VeiError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Plugin   string
	FilePath string
}

// Error implements the error interface.
func (e *VeiError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Plugin != "" {
		parts = append(parts, "plugin:"+e.Plugin)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *VeiError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *VeiError) Is(target error) bool {
	var t *VeiError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *VeiError) WithContext(key string, value interface{}) *VeiError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile records the file the error is about.
func (e *VeiError) WithFile(filePath string) *VeiError {
	e.FilePath = filePath

	return e
}

// WithPlugin attributes the error to a plugin.
func (e *VeiError) WithPlugin(name string) *VeiError {
	e.Plugin = name

	return e
}

// NewConfigError creates a configuration error. Configuration errors abort
// the operation that raised them.
func NewConfigError(code, message string) *VeiError {
	return &VeiError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *VeiError {
	return &VeiError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *VeiError {
	return &VeiError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *VeiError {
	return &VeiError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	var ve *VeiError
	if errors.As(err, &ve) {
		return ve.Type == ErrorTypeConfig
	}

	return false
}

// IsBuildError checks if an error is build-related. Diagnostics returned by
// the bundler count as build errors.
func IsBuildError(err error) bool {
	var de *DiagnosticsError
	if errors.As(err, &de) {
		return true
	}

	var ve *VeiError
	if errors.As(err, &ve) {
		return ve.Type == ErrorTypeBuild
	}

	return false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	for err != nil {
		var ve *VeiError
		if !errors.As(err, &ve) {
			return false
		}
		if ve.Code == code {
			return true
		}
		err = ve.Cause
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error according to its category.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var de *DiagnosticsError
	if errors.As(err, &de) {
		h.logger.Warn(ctx, nil, "Build failed",
			"errors", len(de.Errors),
			"warnings", len(de.Warnings),
			"diagnostics", de.Format(false))
		return
	}

	var ve *VeiError
	if !errors.As(err, &ve) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch ve.Type {
	case ErrorTypeBuild:
		h.logger.Warn(ctx, ve, "Build error occurred",
			"code", ve.Code,
			"plugin", ve.Plugin,
			"file", ve.FilePath)
	case ErrorTypeConfig:
		h.logger.Error(ctx, ve, "Configuration error",
			"code", ve.Code)
	default:
		h.logger.Error(ctx, ve, "Error occurred",
			"type", ve.Type,
			"code", ve.Code)
	}
}

// Common error codes.
const (
	ErrCodeHTMLEntryMissing     = "ERR_HTML_ENTRY_MISSING"
	ErrCodeTransformToolMissing = "ERR_TRANSFORM_TOOL_MISSING"
	ErrCodeReservedMode         = "ERR_RESERVED_MODE"
	ErrCodeScriptNotModule      = "ERR_SCRIPT_NOT_MODULE"
	ErrCodeOutputMapping        = "ERR_OUTPUT_MAPPING"
	ErrCodeBuildFailed          = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid        = "ERR_CONFIG_INVALID"
	ErrCodePluginSetup          = "ERR_PLUGIN_SETUP"
	ErrCodeFileNotFound         = "ERR_FILE_NOT_FOUND"
	ErrCodeWriteFailed          = "ERR_WRITE_FAILED"
)

// ErrHTMLEntryMissing reports a missing index.html.
func ErrHTMLEntryMissing(path string) *VeiError {
	return NewConfigError(ErrCodeHTMLEntryMissing, path+" does not exist").WithFile(path)
}

// ErrReservedMode reports a mode name that collides with the .local env file suffix.
func ErrReservedMode(mode string) *VeiError {
	return NewConfigError(
		ErrCodeReservedMode,
		fmt.Sprintf("%q cannot be used as a mode name because it conflicts with the .local postfix for .env files", mode),
	)
}

// ErrTransformToolMissing reports an external transform tool that could not be found.
func ErrTransformToolMissing(tool string, cause error) *VeiError {
	e := NewConfigError(
		ErrCodeTransformToolMissing,
		fmt.Sprintf("a stylesheet transform config was found but %q is not installed", tool),
	)
	e.Cause = cause

	return e
}

// ErrOutputMapping reports an entry the bundler produced no output for.
func ErrOutputMapping(entry, source string) *VeiError {
	return NewInternalError(
		ErrCodeOutputMapping,
		"can't find output file for entry "+entry,
		nil,
	).WithFile(source)
}
