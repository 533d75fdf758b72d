// Package validation rejects configuration values that would reach a shell,
// a browser launcher or a URL unsanitized.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// shellMeta are characters with meaning to a shell or a command line.
var shellMeta = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", "\x00"}

func findShellMeta(s string) (string, bool) {
	for _, char := range shellMeta {
		if strings.Contains(s, char) {
			return char, true
		}
	}
	return "", false
}

// ValidateHost checks a listen host.
func ValidateHost(host string) error {
	if char, ok := findShellMeta(host); ok {
		return fmt.Errorf("host contains dangerous character: %q", char)
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("host %q is not a hostname or address", host)
	}
	return nil
}

// ValidateCommand checks the stylesheet transform command. It may be a bare
// name resolved through PATH or a path to a binary, never a shell snippet.
func ValidateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if char, ok := findShellMeta(command); ok {
		return fmt.Errorf("command %q contains dangerous character: %q", command, char)
	}
	if strings.ContainsAny(command, " \t") {
		return fmt.Errorf("command %q contains whitespace, pass arguments separately", command)
	}
	return nil
}

// ValidateBase checks the public base path: an absolute path or a full
// http(s) URL. It ends up inside HTML attributes.
func ValidateBase(base string) error {
	if base == "" {
		return nil
	}
	if strings.ContainsAny(base, "\"'<>\\ \n\r\x00") {
		return fmt.Errorf("base %q contains a character not allowed in a URL", base)
	}
	if strings.HasPrefix(base, "/") && !strings.HasPrefix(base, "//") {
		return nil
	}

	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Errorf("base %q must be absolute or a full URL", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base %q has unsupported scheme %q", base, u.Scheme)
	}
	return nil
}
