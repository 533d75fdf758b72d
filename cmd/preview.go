package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/vei/internal/config"
	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/server"
)

// DefaultPreviewPort keeps preview and serve runnable side by side.
const DefaultPreviewPort = 4173

var previewCmd = &cobra.Command{
	Use:     "preview [root]",
	Aliases: []string{"p"},
	Short:   "Serve the production build",
	Long: `Serve the output directory of a previous vei build as static files.
Paths that match no file get index.html so client-side routes work.

Examples:
  vei build && vei preview   # Build, then serve dist/ on :4173
  vei preview -p 8080        # Serve on :8080`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	addServerFlags(previewCmd, DefaultPreviewPort)
}

func runPreview(cmd *cobra.Command, args []string) error {
	// Only host and open come from the configuration; server.port belongs
	// to the dev server.
	if err := bindFlags(cmd.Flags(), map[string]string{"host": "server.host", "open": "server.open"}); err != nil {
		return err
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeConfigInvalid, "failed to resolve root directory")
	}
	port, _ := cmd.Flags().GetInt("port")

	preview, err := server.NewPreviewServer(server.PreviewOptions{
		Host:   cfg.Server.Host,
		Port:   port,
		Open:   cfg.Server.Open,
		OutDir: config.ResolveDir(root, cfg.Build.OutDir, "dist"),
		Base:   cfg.Build.Base,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return preview.Start(ctx)
}
