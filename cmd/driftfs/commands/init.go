package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftfs/driftfs/pkg/config"
)

var (
	initForce         bool
	initAdminPassword string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a DriftFS configuration file with generated secrets.

A random JWT signing secret and encryption master key are generated, and an
admin account is provisioned. When --admin-password is not given, a random
password is generated and printed once.

By default, the configuration file is created at $XDG_CONFIG_HOME/driftfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  driftfs init

  # Initialize with custom path
  driftfs init --config /etc/driftfs/config.yaml

  # Choose the admin password instead of generating one
  driftfs init --admin-password 'correct horse battery staple'

  # Force overwrite existing config
  driftfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initAdminPassword, "admin-password", "", "Admin password (default: generated)")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
	}

	adminPassword := initAdminPassword
	generated := adminPassword == ""
	if generated {
		adminPassword = randomToken(12)
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	cfg := config.GetDefaultConfig()
	cfg.Auth.JWTSecret = randomToken(32)
	cfg.Auth.Admin.PasswordHash = string(passwordHash)
	cfg.Encryption.MasterKey = randomToken(32)

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	if generated {
		fmt.Printf("\nAdmin account: %s\n", cfg.Auth.Admin.Username)
		fmt.Printf("Admin password: %s\n", adminPassword)
		fmt.Println("Save this password now. Only its hash is stored; it will not be shown again.")
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: driftfs start")
	fmt.Printf("  3. Or specify custom config: driftfs start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  The encryption master key seals storage credentials at rest.")
	fmt.Println("  Back it up; configs encrypted with it are unreadable without it.")
	fmt.Println("  Secrets can also come from the environment instead of the file:")
	fmt.Println("    export DRIFTFS_AUTH_JWT_SECRET=$(openssl rand -hex 32)")
	fmt.Println("    export DRIFTFS_ENCRYPTION_MASTER_KEY=$(openssl rand -hex 32)")

	return nil
}

// randomToken returns n random bytes hex-encoded.
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform entropy source is broken;
		// nothing sensible to do but abort.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
