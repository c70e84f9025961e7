package cmd

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ipchat/ipchat/node"
	"github.com/spf13/cobra"
)

var apiPort int
var nodeName string

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Start an ipchat node",
	Long: `Start an ipchat node that participates in the LAN network.

The node will:
  - Advertise itself and browse for peers via mDNS
  - Listen for chat/heartbeat connections on port 8765
  - Listen for file-transfer connections on port 8766
  - Start a local HTTP control-plane API for the CLI to drive`,
	Run: runNode,
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all running ipchat nodes",
	Run:   runNodeList,
}

var nodeKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill all running ipchat nodes",
	Run:   runNodeKill,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeKillCmd)

	nodeCmd.Flags().IntVar(&apiPort, "api-port", 7890, "Port for the local HTTP control-plane API")
	nodeCmd.Flags().StringVar(&nodeName, "name", os.Getenv("IPCHAT_NAME"), "Display name to advertise (overrides the hostname default, also settable via IPCHAT_NAME)")
}

func runNode(cmd *cobra.Command, args []string) {
	fmt.Printf("╔══════════════════════════════════════════════╗\n")
	fmt.Printf("║   ipchat node                                 ║\n")
	fmt.Printf("╚══════════════════════════════════════════════╝\n\n")

	fmt.Printf("🚀 Starting ipchat node...\n")
	fmt.Printf("   API Port: %d\n\n", apiPort)

	app, err := node.NewApp()
	if err != nil {
		log.Fatalf("Failed to construct node: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	if nodeName != "" {
		if err := app.Rename(nodeName); err != nil {
			log.Printf("⚠️  Failed to set display name to %q: %v", nodeName, err)
		}
	}

	apiServer := node.NewAPIServer(app, fmt.Sprintf(":%d", apiPort))
	if err := apiServer.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	status := app.GetStatus()
	fmt.Printf("✅ Node started successfully!\n\n")
	fmt.Printf("📍 Node Info:\n")
	fmt.Printf("   Peer ID: %s\n", status.PeerID)
	fmt.Printf("   Address: %s\n\n", status.ListenAddr)
	fmt.Printf("🔌 API Server: http://localhost:%d\n", apiPort)
	fmt.Printf("\nNode is running. Press Ctrl+C to stop.\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n👋 Shutting down node...")
	apiServer.Stop()
	app.Shutdown()
}

func runNodeList(cmd *cobra.Command, args []string) {
	out, err := exec.Command("ps", "aux").Output()
	if err != nil {
		fmt.Printf("❌ Error running ps: %v\n", err)
		return
	}

	var nodes []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "ipchat node") && !strings.Contains(line, "node list") && !strings.Contains(line, "node kill") {
			nodes = append(nodes, line)
		}
	}

	if len(nodes) == 0 {
		fmt.Printf("📋 No running ipchat nodes found\n")
		return
	}

	fmt.Printf("📋 Running ipchat Nodes:\n\n")
	for _, line := range nodes {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		fmt.Printf("  PID: %s\n", fields[1])
	}
	fmt.Printf("\nTotal: %d nodes\n", len(nodes))
}

func runNodeKill(cmd *cobra.Command, args []string) {
	fmt.Printf("⚠️  Killing all ipchat node processes...\n")

	if err := exec.Command("killall", "-9", "ipchat").Run(); err != nil {
		fmt.Printf("❌ Error killing processes: %v\n", err)
		fmt.Printf("   (This might just mean no processes were running)\n")
		return
	}

	fmt.Printf("✅ All ipchat nodes killed\n")
	fmt.Printf("💡 Tip: wait a few seconds for the mDNS cache to expire before starting new nodes\n")
}
