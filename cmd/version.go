package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elisoncampos/reactive-views-sub000/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version, commit and build information.

Examples:
  reactiveviews version
  reactiveviews version --short
  reactiveviews version --format json`,
	RunE: runVersion,
}

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "output format (text, json)")
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "print only the version")
	versionCmd.Flags().BoolVarP(&versionDetailed, "detailed", "d", false, "print all build information")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "text":
		switch {
		case versionShort:
			fmt.Fprintln(out, info.Short())
		case versionDetailed:
			fmt.Fprintln(out, info.Detailed())
		default:
			fmt.Fprintf(out, "reactiveviews %s\n", info.Short())
		}
	default:
		return fmt.Errorf("unsupported format: %s", versionFormat)
	}
	return nil
}
