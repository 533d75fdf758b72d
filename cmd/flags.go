package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/vei/internal/config"
)

// addServerFlags registers the listener flags shared by serve and preview.
func addServerFlags(cmd *cobra.Command, port int) {
	cmd.Flags().IntP("port", "p", port, "Port to serve on")
	cmd.Flags().String("host", config.DefaultHost, "Host to bind to")
	cmd.Flags().Bool("open", false, "Open the browser once the server listens")

	AddFlagValidation(cmd, "port", ValidatePort)
}

// serverBindings maps server flags onto configuration keys.
var serverBindings = map[string]string{
	"port": "server.port",
	"host": "server.host",
	"open": "server.open",
}

// bindFlags binds flags to viper keys. Binding happens when a command runs
// so commands sharing a key do not steal each other's flags.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// AddFlagValidation rejects bad values as the flag is parsed.
func AddFlagValidation(cmd *cobra.Command, name string, validator func(string) error) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if err := v.validator(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}

func ValidatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateMode accepts the two build modes. "local" is reserved for dot-env
// file suffixes.
func ValidateMode(value string) error {
	switch value {
	case config.ModeDevelopment, config.ModeProduction:
		return nil
	case "local":
		return fmt.Errorf("mode %q is reserved", value)
	}
	return fmt.Errorf("unknown mode %q, expected %s or %s", value, config.ModeDevelopment, config.ModeProduction)
}

func ValidateSourcemap(value string) error {
	switch value {
	case "", "linked", "inline", "none":
		return nil
	}
	return fmt.Errorf("unknown sourcemap %q, expected linked, inline or none", value)
}
