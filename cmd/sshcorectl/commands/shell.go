package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"

	"github.com/sshcore/transport/internal/notify"
	"github.com/sshcore/transport/internal/server"
)

// shellCmd launches an interactive console.Console REPL over the same
// sessions/version subcommands the one-shot CLI exposes.
func shellCmd() *cobra.Command {
	var notifyDesktop bool

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive sshcorectl shell",
		Long:  "Launches a reeflective/console REPL exposing the sessions and version subcommands.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShell(notifyDesktop)
		},
	}

	cmd.Flags().BoolVar(&notifyDesktop, "notify", false,
		"forward sessions entering ERROR to a desktop notification")

	return cmd
}

func runShell(notifyDesktop bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var stopWatch context.CancelFunc
	if notifyDesktop {
		cancel, err := startDesktopNotifications(logger)
		if err != nil {
			logger.Warn("desktop notifications disabled", slog.Any("error", err))
		} else {
			stopWatch = cancel
		}
	}
	if stopWatch != nil {
		defer stopWatch()
	}

	app := console.New("sshcorectl")
	menu := app.ActiveMenu()
	menu.Short = "sshcorectl interactive shell"
	menu.SetCommands(func() *cobra.Command {
		root := &cobra.Command{Use: "sshcorectl"}
		root.AddCommand(sessionsCmd())
		root.AddCommand(versionCmd())
		return root
	})

	if err := app.Start(); err != nil {
		return fmt.Errorf("run shell: %w", err)
	}
	return nil
}

// startDesktopNotifications dials the session D-Bus bus and forwards every
// ERROR-phase session event from the watch stream to it, returning a
// cancel func the caller should defer.
func startDesktopNotifications(logger *slog.Logger) (context.CancelFunc, error) {
	sink, err := notify.Dial(logger)
	if err != nil {
		return nil, fmt.Errorf("dial desktop notification bus: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	ch := make(chan server.Event, 32)
	go func() {
		_ = client.watchSessions(ctx, false, func(ev server.Event) error {
			select {
			case ch <- ev:
			default:
			}
			return nil
		})
		close(ch)
	}()

	go sink.Watch(ctx, ch)

	return func() {
		cancel()
		_ = sink.Close()
	}, nil
}
