package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <peer-id> <message>",
	Short: "Send a chat message to a peer",
	Args:  cobra.ExactArgs(2),
	Run:   runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	peerID, content := args[0], args[1]

	reqBody, err := json.Marshal(map[string]string{"peerId": peerID, "content": content})
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}

	resp, err := http.Post(apiAddr+"/messages", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Printf("❌ Error connecting to node: %v\n", err)
		fmt.Printf("   Make sure a node is running (./ipchat node)\n")
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]string
		json.Unmarshal(body, &errResp)
		fmt.Printf("❌ Error: %s\n", errResp["error"])
		return
	}

	fmt.Printf("✅ Message sent to %s\n", peerID)
}
