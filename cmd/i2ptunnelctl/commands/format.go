// Package commands implements the i2ptunnelctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/go-i2p/tunneld/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatTunnels renders a slice of tunnel snapshots in the requested format.
func formatTunnels(snaps []server.TunnelSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatTunnelsJSON(snaps)
	case formatTable:
		return formatTunnelsTable(snaps), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatter ---

func formatTunnelsTable(snaps []server.TunnelSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TUNNEL-ID\tROLE\tCREATED\tBYTES")

	for _, s := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n",
			s.TunnelID,
			s.Role,
			s.CreationTime.Format("2006-01-02T15:04:05Z07:00"),
			s.TransmittedBytes,
		)
	}

	w.Flush()

	return buf.String()
}

// --- JSON formatter ---

func formatTunnelsJSON(snaps []server.TunnelSnapshot) (string, error) {
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tunnels to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
