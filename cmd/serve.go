package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/vei/internal/build"
	"github.com/conneroisu/vei/internal/config"
	"github.com/conneroisu/vei/internal/monitoring"
	"github.com/conneroisu/vei/internal/server"
	"github.com/conneroisu/vei/internal/version"
)

var serveCmd = &cobra.Command{
	Use:     "serve [root]",
	Aliases: []string{"s", "dev"},
	Short:   "Start the dev server with live reload",
	Long: `Start the dev server. The project is built once, then every change to a
file the build read triggers a rebuild and reloads connected browsers.
Changes to index.html rebuild from scratch; changes under the public
directory only reload.

The server also answers /__vei/health and /__vei/metrics.

Examples:
  vei serve                  # Serve the current directory on :3000
  vei serve ./site -p 8080   # Serve ./site on :8080
  vei serve --open           # Open the browser once ready`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindServerFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd, config.DefaultPort)
}

func bindServerFlags(cmd *cobra.Command, _ []string) error {
	return bindFlags(cmd.Flags(), serverBindings)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := monitoring.NewPrometheusRecorder(nil)
	opts, err := normalize(cfg, logger, func(o *build.Options) {
		o.Recorder = recorder
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "Starting dev server", "root", opts.Root, "mode", opts.Mode, "version", version.GetShortVersion())

	srv := server.NewDevServer(server.DevOptions{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Open:     cfg.Server.Open,
		Debounce: cfg.Watch.Debounce,
		Ignore:   cfg.Watch.Ignore,
		Version:  version.GetShortVersion(),
		Metrics:  recorder.Handler(),
	}, opts)

	return srv.Start(ctx)
}
