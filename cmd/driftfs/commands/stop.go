package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DriftFS server",
	Long: `Stop a DriftFS server started in daemon mode.

The server is located through its PID file and asked to shut down gracefully
with SIGTERM. If it does not exit within the timeout, SIGKILL is sent.

Examples:
  # Stop the server
  driftfs stop

  # Stop with custom PID file
  driftfs stop --pid-file /var/run/driftfs.pid`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "Time to wait for graceful shutdown before SIGKILL")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pid, err := readPidFile(pidPath)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidPath)
		return fmt.Errorf("DriftFS is not running (stale PID file removed)")
	}

	fmt.Printf("Stopping DriftFS (PID %d)...\n", pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	// Poll until the process exits or the timeout elapses
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			_ = os.Remove(pidPath)
			fmt.Println("DriftFS stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	fmt.Printf("Graceful shutdown timed out after %s, sending SIGKILL\n", stopTimeout)
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	return nil
}

// readPidFile reads and parses a PID file.
func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("DriftFS is not running (no PID file at %s)", path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}
