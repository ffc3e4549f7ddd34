package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcore/transport/internal/server"
)

var errSessionIDRequired = errors.New("a numeric session id is required")

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage transport sessions",
	}

	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsGetCmd())
	cmd.AddCommand(sessionsWatchCmd())
	cmd.AddCommand(sessionsCloseCmd())

	return cmd
}

// --- sessions list ---

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tracked sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			snaps, err := client.listSessions(context.Background())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSnapshots(snaps, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- sessions get ---

func sessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show details of a tracked session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			snap, err := client.getSession(context.Background(), id)
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSnapshot(snap, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- sessions close ---

func sessionsCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Tear down a tracked session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := client.closeSession(context.Background(), id); err != nil {
				return fmt.Errorf("close session: %w", err)
			}

			fmt.Printf("Session %d closed.\n", id)
			return nil
		},
	}
}

// --- sessions watch ---

func sessionsWatchCmd() *cobra.Command {
	var includeCurrent bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session lifecycle and phase-change events",
		Long:  "Connects to the sshcored control-plane and streams session events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := client.watchSessions(ctx, includeCurrent, func(ev server.Event) error {
				out, err := formatEvent(ev, outputFormat)
				if err != nil {
					return fmt.Errorf("format event: %w", err)
				}
				fmt.Println(out)
				return nil
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("watch sessions: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeCurrent, "current", false,
		"include current sessions before streaming changes")

	return cmd
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errSessionIDRequired, raw)
	}
	return id, nil
}
