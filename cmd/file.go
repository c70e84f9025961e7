package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Send and manage file transfers",
}

var fileSendCmd = &cobra.Command{
	Use:   "send <peer-id> <path>",
	Short: "Offer a file to a peer",
	Args:  cobra.ExactArgs(2),
	Run:   runFileSend,
}

var fileAcceptCmd = &cobra.Command{
	Use:   "accept <transfer-id> <destination>",
	Short: "Accept a pending transfer",
	Args:  cobra.ExactArgs(2),
	Run:   runFileAccept,
}

var fileRejectCmd = &cobra.Command{
	Use:   "reject <transfer-id>",
	Short: "Reject a pending transfer",
	Args:  cobra.ExactArgs(1),
	Run:   runFileReject,
}

var fileCancelCmd = &cobra.Command{
	Use:   "cancel <transfer-id>",
	Short: "Cancel an in-progress transfer",
	Args:  cobra.ExactArgs(1),
	Run:   runFileCancel,
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known transfers",
	Run:   runFileList,
}

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileSendCmd, fileAcceptCmd, fileRejectCmd, fileCancelCmd, fileListCmd)
}

func postJSON(path string, body interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(apiAddr+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%v", result["error"])
	}
	return result, nil
}

func runFileSend(cmd *cobra.Command, args []string) {
	peerID, path := args[0], args[1]

	result, err := postJSON("/transfers", map[string]string{"peerId": peerID, "path": path})
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		fmt.Printf("   Make sure a node is running (./ipchat node)\n")
		return
	}

	fmt.Printf("📤 Transfer offered: %v\n", result["id"])
}

func runFileAccept(cmd *cobra.Command, args []string) {
	transferID, dest := args[0], args[1]

	result, err := postJSON("/transfers/"+transferID+"/accept", map[string]string{"destinationPath": dest})
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}

	fmt.Printf("✅ Accepted transfer %v, saving to %s\n", result["id"], dest)
}

func runFileReject(cmd *cobra.Command, args []string) {
	transferID := args[0]

	if _, err := postJSON("/transfers/"+transferID+"/reject", map[string]string{}); err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}

	fmt.Printf("🚫 Rejected transfer %s\n", transferID)
}

func runFileCancel(cmd *cobra.Command, args []string) {
	transferID := args[0]

	if _, err := postJSON("/transfers/"+transferID+"/cancel", map[string]string{}); err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		return
	}

	fmt.Printf("🚫 Cancelled transfer %s\n", transferID)
}

func runFileList(cmd *cobra.Command, args []string) {
	fmt.Printf("📁 File Transfers:\n\n")

	resp, err := http.Get(apiAddr + "/transfers")
	if err != nil {
		fmt.Printf("❌ Error connecting to node: %v\n", err)
		fmt.Printf("   Make sure a node is running (./ipchat node)\n")
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var result struct {
		Transfers []struct {
			ID               string `json:"id"`
			FileName         string `json:"fileName"`
			Status           string `json:"status"`
			BytesTransferred int64  `json:"bytesTransferred"`
			FileSize         int64  `json:"fileSize"`
		} `json:"transfers"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("❌ Error parsing response: %v\n", err)
		return
	}

	if len(result.Transfers) == 0 {
		fmt.Printf("No transfers found\n")
		return
	}

	for _, t := range result.Transfers {
		fmt.Printf("📄 %s (%s)\n", t.FileName, t.ID)
		fmt.Printf("   Status: %s - %d/%d bytes\n\n", t.Status, t.BytesTransferred, t.FileSize)
	}
}
