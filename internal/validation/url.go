package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks a URL before it is handed to the system browser
// launcher, which may pass it through a shell.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	if char, ok := findShellMeta(rawURL); ok {
		return fmt.Errorf("URL contains dangerous character: %q", char)
	}
	if strings.Contains(rawURL, " ") {
		return fmt.Errorf("URL contains spaces")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}
