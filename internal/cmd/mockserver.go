package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensemble-chat/ensemble/internal/transport"
)

var mockserverCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "Serve an OpenAI-compatible mock model backend",
	Long: `Serve a local chat-completions backend that echoes the last user
message for any model. Useful for trying modes without model credentials:

  ensemble mockserver --addr :8090
  ENSEMBLE_TRANSPORT_BASE_URL=http://localhost:8090 ensemble run "hello"`,
	RunE: runMockserver,
}

func init() {
	mockserverCmd.Flags().String("addr", ":8090", "listen address")
	rootCmd.AddCommand(mockserverCmd)
}

func runMockserver(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	server := &http.Server{
		Addr:              addr,
		Handler:           transport.NewMockServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "mock model backend listening on %s\n", addr)
	return server.ListenAndServe()
}
