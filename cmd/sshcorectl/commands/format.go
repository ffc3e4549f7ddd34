// Package commands implements the sshcorectl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sshcore/transport/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSnapshots renders a slice of session snapshots in the requested format.
func formatSnapshots(snaps []server.Snapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(snaps)
	case formatTable:
		return formatSnapshotsTable(snaps), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSnapshot renders a single session snapshot in the requested format.
func formatSnapshot(snap server.Snapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(snap)
	case formatTable:
		return formatSnapshotDetail(snap), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatEvent renders a session event in the requested format.
func formatEvent(ev server.Event, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(ev)
	case formatTable:
		return formatEventTable(ev), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatSnapshotsTable(snaps []server.Snapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPEER\tROLE\tSESSION-PHASE\tKEX-PHASE\tERROR")

	for _, s := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			na(s.PeerAddr),
			s.Role,
			s.SessionPhase,
			s.KexPhase,
			shortError(s),
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatSnapshotDetail(s server.Snapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%d\n", s.ID)
	fmt.Fprintf(w, "Peer Address:\t%s\n", na(s.PeerAddr))
	fmt.Fprintf(w, "Role:\t%s\n", s.Role)
	fmt.Fprintf(w, "Session Phase:\t%s\n", s.SessionPhase)
	fmt.Fprintf(w, "Kex Phase:\t%s\n", s.KexPhase)
	fmt.Fprintf(w, "Auth Phase:\t%s\n", s.AuthPhase)
	fmt.Fprintf(w, "Global Request Phase:\t%s\n", s.GlobalReqPhase)
	fmt.Fprintf(w, "Auth Service Phase:\t%s\n", s.AuthServicePhase)
	fmt.Fprintf(w, "Send Sequence:\t%d\n", s.SendSeq)
	fmt.Fprintf(w, "Recv Sequence:\t%d\n", s.RecvSeq)
	fmt.Fprintf(w, "Packets Sent:\t%d\n", s.SentPackets)
	fmt.Fprintf(w, "Bytes Sent:\t%d\n", s.SentBytes)
	fmt.Fprintf(w, "Packets Received:\t%d\n", s.RecvPackets)
	fmt.Fprintf(w, "Bytes Received:\t%d\n", s.RecvBytes)
	fmt.Fprintf(w, "Error:\t%s\n", shortError(s))
	fmt.Fprintf(w, "Created At:\t%s\n", s.CreatedAt.Format(time.RFC3339))

	_ = w.Flush()
	return buf.String()
}

func formatEventTable(ev server.Event) string {
	return fmt.Sprintf("[%s] %s  id=%d  peer=%s  phase=%s  error=%s",
		ev.Timestamp.Format(time.RFC3339),
		ev.Type,
		ev.SessionID,
		na(ev.Session.PeerAddr),
		ev.Session.SessionPhase,
		shortError(ev.Session),
	)
}

// --- JSON formatter ---

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// --- helpers ---

func na(s string) string {
	if s == "" {
		return valueNA
	}
	return s
}

func shortError(s server.Snapshot) string {
	if !s.InError {
		return valueNA
	}
	return na(s.Error)
}
