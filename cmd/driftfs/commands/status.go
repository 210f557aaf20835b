package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the DriftFS server.

This command checks the PID file for a running daemon and probes the health
endpoint for liveness.

Examples:
  # Check status (uses default settings)
  driftfs status

  # Check status with custom API port
  driftfs status --api-port 9080`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pid, err := readPidFile(pidPath)
	if err == nil {
		if process, perr := os.FindProcess(pid); perr == nil {
			if process.Signal(syscall.Signal(0)) == nil {
				fmt.Printf("Server:  running (PID %d)\n", pid)
			} else {
				fmt.Printf("Server:  not running (stale PID file at %s)\n", pidPath)
			}
		}
	} else {
		fmt.Println("Server:  no PID file (not running, or started in foreground)")
	}

	status, timestamp, err := probeHealth(statusAPIPort)
	if err != nil {
		fmt.Printf("Health:  unreachable (%v)\n", err)
		return nil
	}
	fmt.Printf("Health:  %s (checked %s)\n", status, timestamp.Format(time.RFC3339))
	return nil
}

// probeHealth calls the liveness endpoint and reports its status field.
func probeHealth(port int) (string, time.Time, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("unexpected health response: %w", err)
	}
	return body.Status, body.Timestamp, nil
}
