package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// apiAddr is the base URL the CLI talks to; overridable per-invocation
// with --api-addr.
var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "ipchat",
	Short: "LAN peer-to-peer chat and file transfer",
	Long: `ipchat discovers other ipchat nodes on the local network via mDNS,
exchanges text messages over per-peer TCP sessions, and streams files
between peers in 64KiB chunks. There is no central server: every node
advertises itself and browses for others.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:7890", "Address of a running node's control-plane API")
}
