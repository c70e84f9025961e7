package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	fmt.Printf("📊 Node Status:\n\n")

	resp, err := http.Get(apiAddr + "/status")
	if err != nil {
		fmt.Printf("❌ Error connecting to node: %v\n", err)
		fmt.Printf("   Make sure a node is running (./ipchat node)\n")
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var status struct {
		PeerID     string `json:"peerId"`
		Name       string `json:"name"`
		ListenAddr string `json:"listenAddr"`
		PeerCount  int    `json:"peerCount"`
	}

	if err := json.Unmarshal(body, &status); err != nil {
		fmt.Printf("❌ Error parsing response: %v\n", err)
		return
	}

	fmt.Printf("Peer ID: %s\n", status.PeerID)
	fmt.Printf("Name: %s\n", status.Name)
	fmt.Printf("Address: %s\n", status.ListenAddr)
	fmt.Printf("Peers: %d\n", status.PeerCount)
}
