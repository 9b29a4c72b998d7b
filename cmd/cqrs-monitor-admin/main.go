// Command cqrs-monitor-admin runs operator tasks against the stores the
// dashboard uses: migrations, account roles and local development tokens.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/target/cqrs-monitor/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	cmd := newRootCmd(&app{out: os.Stdout, logger: logger, connect: connectBackend})
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI entrypoint exits non-zero on failure.
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cqrs-monitor-admin",
		Short:         "Administrative tasks for the cqrs-monitor dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.loadConfig()
		},
	}
	root.SetOut(a.out)

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newAccountsCmd(a))
	root.AddCommand(newAdminCmd(a))
	root.AddCommand(newDevCmd(a))
	return root
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
