package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/elisoncampos/reactive-views-sub000/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <Name>...",
	Short: "Show which source file each component name maps to",
	Long: `Resolve logical component names against the configured search paths.

Each name is tried in its written form and in PascalCase, camelCase,
snake_case and kebab-case, with every configured extension, first directly
under each search path and then anywhere below it.

Examples:
  reactiveviews resolve UserCard product_list
  reactiveviews resolve UserCard --roots app/components
  reactiveviews resolve UserCard --source`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var (
	resolveRoots  []string
	resolveSource bool
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringSliceVar(&resolveRoots, "roots", nil, "search paths (default components.search_paths)")
	resolveCmd.Flags().BoolVar(&resolveSource, "source", false, "print the source of each resolved component")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.release()

	roots := resolveRoots
	if len(roots) == 0 {
		roots = a.cfg.Components.SearchPaths
	}

	out := cmd.OutOrStdout()
	if resolveSource {
		src := &resolver.FileSource{Resolver: a.resolver, Roots: roots}
		for _, name := range args {
			data, err := src.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "// %s\n%s\n", name, strings.TrimRight(string(data), "\n"))
		}
		return nil
	}

	missing := 0
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Path", "Variants")
	for _, name := range args {
		path, ok := a.resolver.Resolve(name, roots)
		if !ok {
			path = "(not found)"
			missing++
		}
		_ = table.Append(name, path, strings.Join(resolver.Variants(name), " "))
	}
	if err := table.Render(); err != nil {
		return err
	}

	if missing > 0 {
		return fmt.Errorf("%d of %d components not found in %s", missing, len(args), strings.Join(roots, ", "))
	}
	return nil
}
