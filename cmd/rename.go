package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Change the display name a running node advertises",
	Args:  cobra.ExactArgs(1),
	Run:   runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) {
	name := args[0]

	reqBody, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}

	resp, err := http.Post(apiAddr+"/user", "application/json", bytes.NewReader(reqBody))
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

	fmt.Printf("✅ Display name updated to %s\n", name)
}
