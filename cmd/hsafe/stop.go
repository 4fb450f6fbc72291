package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/daemon"
)

var stopWait time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the API server",
	Long: `Stop a running "hsafe serve" gracefully. The rule list and topology
are already saved on every change, so nothing is lost.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 30*time.Second, "how long to wait for the server to exit")
}

func runStop(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)
	if !running {
		fmt.Println("Server is not running")
		return nil
	}

	sf, _ := daemon.ReadStatusFile(cfg.DataDir)
	fmt.Println(stopBanner(pid, sf, time.Now()))

	if err := daemon.SendStop(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		time.Sleep(250 * time.Millisecond)
		if running, _ := daemon.CheckRunning(cfg.DataDir); !running {
			fmt.Println("Server stopped")
			return nil
		}
	}

	fmt.Printf("Warning: server (PID %d) still running after %s\n", pid, stopWait)
	return nil
}

// stopBanner describes the server being stopped, using status.json when the
// server has written one.
func stopBanner(pid int, sf *daemon.StatusFile, now time.Time) string {
	if sf == nil || sf.PID != pid {
		return fmt.Sprintf("Stopping server (PID %d)...", pid)
	}
	msg := fmt.Sprintf("Stopping server on port %d (PID %d", sf.Port, pid)
	if up := sf.Uptime(now); up > 0 {
		msg += fmt.Sprintf(", up %s", up)
	}
	return msg + fmt.Sprintf(", %d rules, %d nodes)...", sf.Rules, sf.Nodes)
}
