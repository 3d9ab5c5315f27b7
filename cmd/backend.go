package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/supervisor"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage the JavaScript rendering backend",
	Long: `Start, inspect and stop the rendering backend process.

A backend started with "backend start" keeps running after the command exits
and is recorded in ssr.state_file so later commands can find and stop it.
When renderer.url is set nothing is spawned; the commands talk to that URL.`,
}

var backendStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the backend and wait until it is healthy",
	RunE:  runBackendStart,
}

var backendStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the backend is running",
	RunE:  runBackendStatus,
}

var backendStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a backend started by \"backend start\"",
	RunE:  runBackendStop,
}

var backendForeground bool

func init() {
	rootCmd.AddCommand(backendCmd)
	backendCmd.AddCommand(backendStartCmd, backendStatusCmd, backendStopCmd)

	backendStartCmd.Flags().BoolVar(&backendForeground, "foreground", false, "stay attached and stop the backend on SIGINT/SIGTERM")
}

func runBackendStart(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if rec, err := supervisor.ReadState(a.supervisor.StatePath()); err == nil && rec.Alive() {
		a.release()
		fmt.Fprintf(cmd.OutOrStdout(), "Backend already running (pid %d) at %s\n", rec.PID, rec.URL)
		return nil
	}

	url, err := a.supervisor.EnsureRunning(ctx)
	if err != nil {
		a.Close()
		return startHint(err)
	}

	st := a.supervisor.Status()
	if st.External {
		fmt.Fprintf(cmd.OutOrStdout(), "Using external backend at %s\n", url)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Backend running (pid %d) at %s\n", st.PID, url)
	}

	if !backendForeground {
		a.release()
		return nil
	}

	defer a.release()
	if err := a.shutdown.WaitWithContext(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runBackendStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.release()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Renderer.ReadTimeout)
	defer cancel()

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("State", "PID", "URL", "Uptime", "Health")

	if a.cfg.Renderer.URL != "" {
		_ = table.Append("external", "-", a.cfg.Renderer.URL, "-", health(a.pool.Get(a.cfg.Renderer.URL).Health(ctx)))
		return table.Render()
	}

	rec, err := supervisor.ReadState(a.supervisor.StatePath())
	switch {
	case stderrors.Is(err, supervisor.ErrNoState):
		_ = table.Append(supervisor.StateStopped.String(), "-", "-", "-", "-")
	case err != nil:
		return err
	case !rec.Alive():
		_ = table.Append("exited", strconv.Itoa(rec.PID), rec.URL, "-", "-")
	default:
		uptime := time.Since(rec.StartedAt).Truncate(time.Second).String()
		_ = table.Append(supervisor.StateRunning.String(), strconv.Itoa(rec.PID), rec.URL, uptime,
			health(a.pool.Get(rec.URL).Health(ctx)))
	}
	return table.Render()
}

func runBackendStop(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.release()

	if a.cfg.Renderer.URL != "" {
		return fmt.Errorf("backend at %s is external; stop it where it was started", a.cfg.Renderer.URL)
	}

	rec, err := supervisor.StopRecorded(cmd.Context(), a.supervisor.StatePath(), a.cfg.SSR.StopTimeout)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No backend recorded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backend stopped (pid %d)\n", rec.PID)
	return nil
}

func health(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// startHint points at the setting to change when the backend cannot be found.
func startHint(err error) error {
	switch {
	case errors.HasErrorCode(err, errors.ErrCodeRuntimeNotFound):
		return fmt.Errorf("%w (set ssr.runtime to a JavaScript runtime on PATH)", err)
	case errors.HasErrorCode(err, errors.ErrCodeScriptNotFound):
		return fmt.Errorf("%w (set ssr.script to the rendering server entry point)", err)
	}
	return err
}
