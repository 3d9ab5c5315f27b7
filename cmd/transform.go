package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
)

var transformCmd = &cobra.Command{
	Use:   "transform [file]",
	Short: "Render the component islands of a document",
	Long: `Read markup from a file (or stdin), render every component marker
through the rendering backend and write the result.

Host data is offered to every component as props unless --select limits
which keys a component receives. Attributes on the marker always win.

Examples:
  reactiveviews transform page.html
  cat page.html | reactiveviews transform --data '{"user":{"name":"Ada"}}'
  reactiveviews transform page.html --data @data.json --select UserCard=user
  reactiveviews transform page.html -o out.html --report`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTransform,
}

var (
	transformData   string
	transformSelect []string
	transformOutput string
	transformReport bool
)

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().StringVar(&transformData, "data", "", "host data as JSON or @file.json")
	transformCmd.Flags().StringArrayVar(&transformSelect, "select", nil, "limit a component's props: Name=key1,key2 (repeatable)")
	transformCmd.Flags().StringVarP(&transformOutput, "output", "o", "", "write to a file instead of stdout")
	transformCmd.Flags().BoolVar(&transformReport, "report", false, "print a summary of rendered islands to stderr")
}

func runTransform(cmd *cobra.Command, args []string) error {
	var (
		markup []byte
		err    error
	)
	if len(args) == 1 && args[0] != "-" {
		markup, err = os.ReadFile(args[0])
	} else {
		markup, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading markup: %w", err)
	}

	data, err := parseData(transformData)
	if err != nil {
		return err
	}
	selection, err := parseSelect(transformSelect)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := orchestrator.Request{Data: data}
	if selection != nil {
		req.Selector = orchestrator.SelectKeys(selection)
	}

	out, report := a.orchestrator.TransformReport(cmd.Context(), string(markup), req)

	if transformOutput != "" {
		if err := writeOutput(transformOutput, out); err != nil {
			return err
		}
	} else if _, err := io.WriteString(cmd.OutOrStdout(), out); err != nil {
		return err
	}

	if transformReport {
		printReport(cmd.ErrOrStderr(), report)
	}
	return nil
}

// writeOutput writes out to path. A failed close is reported, since buffered
// data may not have reached the file.
func writeOutput(path, out string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if _, err := io.WriteString(f, out); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	return nil
}

func printReport(w io.Writer, report *orchestrator.Report) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "strategy: %s\n", report.Strategy)
	fmt.Fprintf(w, "islands: %d\n", len(report.Islands))
	for _, island := range report.Islands {
		status := "ok"
		if !island.OK {
			status = "failed"
		}
		fmt.Fprintf(w, "  %s %s %s\n", island.ID, island.Name, status)
	}
	if len(report.Failures) > 0 {
		names := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			names = append(names, f.Component)
		}
		fmt.Fprintf(w, "failed: %s\n", strings.Join(names, ", "))
	}
	if report.Err != nil {
		if errors.IsSupervision(report.Err) {
			fmt.Fprintln(w, "backend: unavailable, markup returned unchanged")
		}
		fmt.Fprintf(w, "error: %v\n", report.Err)
	}
}
