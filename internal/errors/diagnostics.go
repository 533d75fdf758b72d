package errors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// DiagnosticsError carries the messages of a failed bundling pass. Messages
// raised by plugins keep their PluginName.
type DiagnosticsError struct {
	Errors   []api.Message
	Warnings []api.Message
}

// Error implements the error interface.
func (d *DiagnosticsError) Error() string {
	if len(d.Errors) == 0 {
		return "build failed"
	}
	first := d.Errors[0]
	msg := first.Text
	if first.PluginName != "" {
		msg = fmt.Sprintf("[plugin %s] %s", first.PluginName, msg)
	}
	if first.Location != nil {
		msg = fmt.Sprintf("%s:%d:%d: %s", first.Location.File, first.Location.Line, first.Location.Column, msg)
	}
	if len(d.Errors) > 1 {
		msg += fmt.Sprintf(" (and %d more errors)", len(d.Errors)-1)
	}

	return msg
}

// Format renders every message the way the bundler prints them.
func (d *DiagnosticsError) Format(color bool) string {
	var b strings.Builder
	for _, s := range api.FormatMessages(d.Errors, api.FormatMessagesOptions{
		Kind:  api.ErrorMessage,
		Color: color,
	}) {
		b.WriteString(s)
	}
	for _, s := range api.FormatMessages(d.Warnings, api.FormatMessagesOptions{
		Kind:  api.WarningMessage,
		Color: color,
	}) {
		b.WriteString(s)
	}

	return b.String()
}

// Plugins returns the distinct plugin names errors are attributed to.
func (d *DiagnosticsError) Plugins() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range d.Errors {
		if m.PluginName == "" || seen[m.PluginName] {
			continue
		}
		seen[m.PluginName] = true
		names = append(names, m.PluginName)
	}

	return names
}

// FromMessages returns a DiagnosticsError when errs is non-empty and nil otherwise.
func FromMessages(errs, warnings []api.Message) error {
	if len(errs) == 0 {
		return nil
	}

	return &DiagnosticsError{Errors: errs, Warnings: warnings}
}

// MessageFromError converts an error raised inside a plugin hook into a
// bundler message attributed to that plugin.
func MessageFromError(err error, pluginName string) api.Message {
	msg := api.Message{
		Text:       err.Error(),
		PluginName: pluginName,
		Detail:     err,
	}

	var ve *VeiError
	if As(err, &ve) && ve.FilePath != "" {
		msg.Location = &api.Location{File: ve.FilePath}
	}

	return msg
}

// ErrorCollector collects diagnostics across builds.
type ErrorCollector struct {
	messages []api.Message
	errors   []error
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector.
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		messages: make([]api.Message, 0),
		errors:   make([]error, 0),
	}
}

// AddError adds an error to the collector. Diagnostics are unpacked into
// their messages.
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	var de *DiagnosticsError
	if As(err, &de) {
		ec.messages = append(ec.messages, de.Errors...)
		return
	}
	ec.errors = append(ec.errors, err)
}

// Messages returns a copy of the collected bundler messages.
func (ec *ErrorCollector) Messages() []api.Message {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]api.Message, len(ec.messages))
	copy(result, ec.messages)

	return result
}

// HasErrors returns true if there are any errors.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	return len(ec.messages) > 0 || len(ec.errors) > 0
}

// Clear clears all errors.
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.messages = ec.messages[:0]
	ec.errors = ec.errors[:0]
}

// Summary returns a single line per collected problem.
func (ec *ErrorCollector) Summary() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	lines := make([]string, 0, len(ec.messages)+len(ec.errors))
	for _, m := range ec.messages {
		line := m.Text
		if m.PluginName != "" {
			line = "[" + m.PluginName + "] " + line
		}
		lines = append(lines, line)
	}
	for _, err := range ec.errors {
		lines = append(lines, err.Error())
	}

	return lines
}
