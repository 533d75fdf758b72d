package errors

import (
	"errors"
)

// New is errors.New, re-exported so callers need a single import.
func New(text string) error {
	return errors.New(text)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context, creating a VeiError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *VeiError {
	if err == nil {
		return nil
	}

	// Keep the plugin and file of an inner VeiError so the outer one stays attributed.
	var ve *VeiError
	if errors.As(err, &ve) {
		return &VeiError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Cause:    ve,
			Context:  ve.Context,
			Plugin:   ve.Plugin,
			FilePath: ve.FilePath,
		}
	}

	return &VeiError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapBuild wraps an error as a build error attributed to a plugin.
func WrapBuild(err error, code, message, plugin string) *VeiError {
	wrapped := Wrap(err, ErrorTypeBuild, code, message)
	if wrapped != nil && plugin != "" {
		wrapped.Plugin = plugin
	}
	return wrapped
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *VeiError {
	return Wrap(err, ErrorTypeIO, code, message)
}
