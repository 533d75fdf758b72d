package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/vei/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the vei version, commit, build time, Go version and platform.

Examples:
  vei version               # Show version
  vei version --short       # Version only
  vei version --format json # Machine-readable output`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().Bool("short", false, "Show the version only")
}

func runVersionCommand(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	short, _ := cmd.Flags().GetBool("short")

	return writeVersion(cmd.OutOrStdout(), format, short)
}

func writeVersion(out io.Writer, format string, short bool) error {
	info := version.GetBuildInfo()

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		enc := yaml.NewEncoder(out)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		if short {
			_, err := fmt.Fprintln(out, version.GetShortVersion())
			return err
		}
		_, err := fmt.Fprintf(out, "vei %s\n%s\n", version.GetShortVersion(), version.GetDetailedVersion())
		return err
	}

	return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
}
