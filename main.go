// Command gateway runs the WebSocket connection gateway and its protocol
// broker. Clients connect over WebSocket, answer a signature challenge and
// then have their requests routed to backend services over NATS; backends
// push notifications back through the gateway node that owns the socket.
//
// Usage:
//
//	gateway -c config/gateway.yaml
//	gateway check -c config/gateway.yaml
//	gateway keys generate --user alice
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "WebSocket connection gateway",
	Long: `Terminates client WebSocket connections, authenticates them with a
challenge/signature handshake and relays their requests to backend services
over NATS. Backends push messages to a client through the "transfer" route
of the gateway node holding the connection.`,
	SilenceUsage: true,
	RunE:         runGateway,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and GATE_* env only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func main() {
	Execute()
}
