package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/api"
	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/api/handlers"
	"github.com/driftfs/driftfs/pkg/config"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/controlplane/store"
	"github.com/driftfs/driftfs/pkg/metrics"
	"github.com/driftfs/driftfs/pkg/secret"
	"github.com/driftfs/driftfs/pkg/vfs"
	"github.com/driftfs/driftfs/pkg/vfs/cache"
	s3driver "github.com/driftfs/driftfs/pkg/vfs/s3"
	"github.com/driftfs/driftfs/pkg/webdav"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DriftFS server",
	Long: `Start the DriftFS server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/driftfs/config.yaml.

Examples:
  # Start in background (default)
  driftfs start

  # Start in foreground
  driftfs start --foreground

  # Start with custom config file
  driftfs start --config /etc/driftfs/config.yaml

  # Start with environment variable overrides
  DRIFTFS_LOGGING_LEVEL=DEBUG driftfs start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/driftfs/driftfs.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("DriftFS - Unified filesystem over S3-compatible object stores")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	if !cfg.API.IsEnabled() {
		return fmt.Errorf("API server is disabled in configuration; nothing to serve")
	}

	// Initialize control plane store (runs migrations on first use)
	cpStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize control plane store: %w", err)
	}
	defer func() {
		if err := cpStore.Close(); err != nil {
			logger.Warn("control plane store close error", "error", err)
		}
	}()
	logger.Info("Control plane store ready", "type", cfg.Database.Type)

	// Secret box seals and opens storage credentials at rest
	secrets, err := secret.NewBox(cfg.Encryption.MasterKey)
	if err != nil {
		return fmt.Errorf("failed to initialize secret box: %w", err)
	}

	// Metrics (if enabled). A nil *Metrics disables collection everywhere.
	var m *metrics.Metrics
	if cfg.Metrics.IsEnabled() {
		m = metrics.New()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Shared caches
	dirCache := cache.NewDirectoryCache(m)
	searchCache := cache.NewSearchCache(cfg.Cache.SearchTTL, m)
	logger.Info("Caches initialized", "search_ttl", cfg.Cache.SearchTTL)

	// Driver pool with the S3 factory registered
	manager := vfs.NewManager()
	manager.Register(models.StorageTypeS3, func(ctx context.Context, storageCfg *models.S3Config) (vfs.Driver, error) {
		driver, err := s3driver.New(ctx, storageCfg, s3driver.Options{
			Secrets:  secrets,
			DirCache: dirCache,
			Records:  cpStore,
		})
		if err != nil {
			return nil, err
		}
		return driver, nil
	})
	defer manager.Close()

	// Engine facade over the mount table
	registry := vfs.NewRegistry(cpStore)
	engine := vfs.NewFileSystem(registry, manager, searchCache)

	// Authentication
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               cfg.Auth.JWTSecret,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	admin := auth.AdminCredentials{
		Username:     cfg.Auth.Admin.Username,
		PasswordHash: cfg.Auth.Admin.PasswordHash,
	}

	// WebDAV endpoint (if enabled)
	var dav http.Handler
	if cfg.WebDAV.IsEnabled() {
		dav = webdav.NewHandler(cfg.WebDAV, engine, admin, cpStore)
		logger.Info("WebDAV endpoint enabled", "prefix", webdav.Prefix)
	} else {
		logger.Info("WebDAV endpoint disabled")
	}

	// API server
	apiServer := api.NewServer(cfg.API, api.Deps{
		Admin:   admin,
		JWT:     jwtService,
		Store:   cpStore,
		FS:      engine,
		Secrets: secrets,
		Engine: &handlers.EngineControl{
			Dirs:    dirCache,
			Search:  searchCache,
			Drivers: manager,
		},
		Metrics: m,
		DAV:     dav,
	})
	logger.Info("API server configured", "port", apiServer.Port())

	// Hot-reload the log level on config file edits
	if configPath := getWatchablePath(GetConfigFile()); configPath != "" {
		watcher, err := config.WatchLogging(configPath)
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// getWatchablePath resolves the config file path to watch for log level
// changes. Empty when no config file is in play.
func getWatchablePath(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("DriftFS is already running (PID %d)\nUse 'driftfs stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	daemon := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("DriftFS started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'driftfs stop' to stop the server")
	fmt.Println("Use 'driftfs status' to check server status")

	return nil
}
