package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List peers discovered on the LAN",
	Run:   runPeers,
}

func init() {
	rootCmd.AddCommand(peersCmd)
}

func runPeers(cmd *cobra.Command, args []string) {
	fmt.Printf("📡 Discovered Peers:\n\n")

	resp, err := http.Get(apiAddr + "/peers")
	if err != nil {
		fmt.Printf("❌ Error connecting to node: %v\n", err)
		fmt.Printf("   Make sure a node is running (./ipchat node)\n")
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var result struct {
		Peers []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			IP       string `json:"ip"`
			LastSeen string `json:"lastSeen"`
		} `json:"peers"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("❌ Error parsing response: %v\n", err)
		return
	}

	if len(result.Peers) == 0 {
		fmt.Printf("No peers discovered\n")
		return
	}

	for _, peer := range result.Peers {
		fmt.Printf("🔗 %s (%s)\n", peer.Name, peer.ID)
		fmt.Printf("   Address: %s\n\n", peer.IP)
	}

	fmt.Printf("Total: %d peers\n", len(result.Peers))
}
