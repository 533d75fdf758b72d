package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/conneroisu/vei/internal/build"
	"github.com/conneroisu/vei/internal/config"
)

var buildCmd = &cobra.Command{
	Use:     "build [root]",
	Aliases: []string{"b"},
	Short:   "Write a production build",
	Long: `Bundle the project for production. The output directory is emptied,
every entry is bundled with content-hashed names, index.html is rewritten to
reference them and the public directory is copied verbatim.

The mode defaults to production unless --mode, VEI_MODE or the config file
says otherwise.

Examples:
  vei build                      # Build into dist/
  vei build ./site --out-dir out # Build ./site into ./out
  vei build --sourcemap linked   # Emit .map files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Bool("minify", true, "minify outputs")
	buildCmd.Flags().String("sourcemap", "", "source maps (linked, inline, none)")
	AddFlagValidation(buildCmd, "sourcemap", ValidateSourcemap)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if !viper.IsSet("mode") {
		cfg.Mode = config.ModeProduction
	}
	// Unset flags must not override the mode's defaults.
	if cmd.Flags().Changed("minify") {
		minify, _ := cmd.Flags().GetBool("minify")
		cfg.Build.Minify = &minify
	}
	if cmd.Flags().Changed("sourcemap") {
		cfg.Build.Sourcemap, _ = cmd.Flags().GetString("sourcemap")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := normalize(cfg, logger, nil)
	if err != nil {
		return err
	}

	result, err := build.Build(ctx, opts, nil)
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), opts.OutDir, result)
}

// printSummary lists every written file with its size.
func printSummary(out io.Writer, outDir string, result *build.Result) error {
	type row struct {
		path string
		size int
	}
	rows := make([]row, 0, len(result.OutputFiles))
	total := 0
	for _, file := range result.OutputFiles {
		rel, err := filepath.Rel(outDir, file.Path)
		if err != nil {
			rel = file.Path
		}
		rows = append(rows, row{path: filepath.ToSlash(rel), size: len(file.Contents)})
		total += len(file.Contents)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		p.Fprintf(w, "%s\t%d B\t\n", r.path, r.size)
	}
	p.Fprintf(w, "%d files\t%d B\t\n", len(rows), total)
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "built in %s\n", result.Duration.Round(time.Millisecond))
	return err
}
