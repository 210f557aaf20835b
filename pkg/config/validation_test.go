package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret-key-for-testing-minimum-32-chars"
	cfg.Auth.Admin.PasswordHash = "$2a$10$abcdefghijklmnopqrstuvwxyz012345678901234567890123456"
	cfg.Encryption.MasterKey = "test-master-key-16plus"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "Logging.Level") {
		t.Errorf("Expected Logging.Level in error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "too-short"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for short JWT secret")
	}
	if !strings.Contains(err.Error(), "JWTSecret") {
		t.Errorf("Expected JWTSecret in error, got: %v", err)
	}
}

func TestValidate_MissingMasterKey(t *testing.T) {
	cfg := validConfig()
	cfg.Encryption.MasterKey = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing master key")
	}
	if !strings.Contains(err.Error(), "MasterKey") {
		t.Errorf("Expected MasterKey in error, got: %v", err)
	}
}

func TestValidate_MissingAdminHash(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Admin.PasswordHash = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing admin password hash")
	}
}

func TestValidate_BadDatabaseType(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "oracle"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unsupported database type")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("Expected database in error, got: %v", err)
	}
}
