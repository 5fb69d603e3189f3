package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient talks to the i2ptunneld admin endpoint. The admin surface
	// is plain HTTP/JSON, not a generated ConnectRPC service, so there is
	// no typed client to construct here.
	httpClient *http.Client

	// baseURL is the daemon's admin address, as a full URL.
	baseURL string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon address (host:port) for the admin HTTP endpoint.
	serverAddr string
)

// rootCmd is the top-level cobra command for i2ptunnelctl.
var rootCmd = &cobra.Command{
	Use:   "i2ptunnelctl",
	Short: "CLI client for the i2ptunneld daemon",
	Long:  "i2ptunnelctl queries the i2ptunneld admin endpoint to inspect transit tunnels.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		httpClient = &http.Client{Timeout: 10 * time.Second}
		baseURL = "http://" + serverAddr
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051",
		"i2ptunneld admin address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(tunnelsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
