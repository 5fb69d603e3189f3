package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/go-i2p/tunneld/internal/server"
)

func tunnelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunnels",
		Short: "Inspect transit tunnels",
	}

	cmd.AddCommand(tunnelsListCmd())

	return cmd
}

// --- tunnels list ---

func tunnelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all transit tunnels known to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			snaps, err := fetchTunnels()
			if err != nil {
				return fmt.Errorf("list tunnels: %w", err)
			}

			out, err := formatTunnels(snaps, outputFormat)
			if err != nil {
				return fmt.Errorf("format tunnels: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// fetchTunnels retrieves the current tunnel snapshot list from the admin
// endpoint. There is no RPC stub here: the admin surface is a plain
// GET /tunnels returning a JSON array.
func fetchTunnels() ([]server.TunnelSnapshot, error) {
	resp, err := httpClient.Get(baseURL + "/tunnels")
	if err != nil {
		return nil, fmt.Errorf("GET /tunnels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /tunnels: unexpected status %s", resp.Status)
	}

	var snaps []server.TunnelSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		return nil, fmt.Errorf("decode tunnel snapshots: %w", err)
	}

	return snaps, nil
}
