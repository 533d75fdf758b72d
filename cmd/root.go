// Package cmd provides the vei command-line interface.
//
// Configuration is read with the following precedence:
//  1. Command-line flags (--port, --mode, ...)
//  2. VEI_<SECTION>_<OPTION> environment variables (VEI_SERVER_PORT, ...)
//  3. The file named by --config or VEI_CONFIG_FILE, else .vei.yml in the
//     working directory
//  4. Built-in defaults
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/vei/internal/build"
	"github.com/conneroisu/vei/internal/config"
	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
)

var (
	cfgFile string
	defines []string
)

var rootCmd = &cobra.Command{
	Use:   "vei [root]",
	Short: "Build and serve front-end projects from an HTML entry document",
	Long: `vei reads index.html, bundles every script, stylesheet and asset it
references and rewrites the document to point at the hashed outputs.

Without a subcommand vei starts the dev server, which rebuilds on change and
reloads connected browsers.

Quick Start:
  vei                   Start the dev server in the current directory
  vei build             Write a production build to dist/
  vei preview           Serve the production build`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: bindRootFlags,
	PreRunE:           bindServerFlags,
	RunE:              runServe,
}

// Execute runs the root command and reports its error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints bundler diagnostics in full and anything else on one
// line.
func reportError(w io.Writer, err error) {
	var de *errors.DiagnosticsError
	if errors.As(err, &de) {
		fmt.Fprintln(w, de.Format(false))
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .vei.yml, can also use VEI_CONFIG_FILE)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringP("mode", "m", "", "build mode (development, production)")
	flags.String("out-dir", "", "output directory (default dist)")
	flags.String("public-dir", "", "directory copied verbatim into the output (default public)")
	flags.String("base", "", "public base path")
	flags.StringArrayVar(&defines, "define", nil, "client environment override KEY=VALUE (repeatable)")

	if f := flags.Lookup("mode"); f != nil {
		f.Value = &validatingValue{Value: f.Value, validator: ValidateMode}
	}

	addServerFlags(rootCmd, config.DefaultPort)
}

var rootBindings = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"mode":       "mode",
	"out-dir":    "build.out_dir",
	"public-dir": "build.public_dir",
	"base":       "build.base",
}

func bindRootFlags(cmd *cobra.Command, _ []string) error {
	return bindFlags(cmd.Flags(), rootBindings)
}

// initConfig points viper at the config file and the VEI_ environment.
func initConfig() {
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv("VEI_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv("VEI_CONFIG_FILE"))
	default:
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vei")
	}

	viper.SetEnvPrefix("VEI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged configuration. A positional argument
// overrides the project root.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	overrides, err := config.ParseOverrides(defines)
	if err != nil {
		return nil, err
	}
	for key, value := range overrides {
		cfg.Env.Overrides[key] = value
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}

// normalize turns the configuration into build options wired to logger.
func normalize(cfg *config.Config, logger logging.Logger, configure func(*build.Options)) (*build.NormalizedOptions, error) {
	opts := build.OptionsFromConfig(cfg)
	opts.Logger = logger
	if configure != nil {
		configure(&opts)
	}
	return build.NormalizeOptions(opts)
}
