package auth

import (
	"testing"
	"time"
)

func TestNewJWTService_ValidConfig(t *testing.T) {
	config := JWTConfig{
		Secret:               "test-secret-key-must-be-32-chars!",
		Issuer:               "test-issuer",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
	}

	service, err := NewJWTService(config)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if service == nil {
		t.Fatal("Expected service to be non-nil")
	}
}

func TestNewJWTService_EmptySecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: ""})
	if err == nil {
		t.Fatal("Expected error for empty secret")
	}
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	if err == nil {
		t.Fatal("Expected error for short secret")
	}
}

func TestGenerateTokenPair(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{
		Secret:               "test-secret-key-must-be-32-chars!",
		Issuer:               "test-issuer",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
	})

	tokenPair, err := service.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if tokenPair.AccessToken == "" {
		t.Error("Expected non-empty access token")
	}
	if tokenPair.RefreshToken == "" {
		t.Error("Expected non-empty refresh token")
	}
	if tokenPair.TokenType != "Bearer" {
		t.Errorf("Expected TokenType 'Bearer', got '%s'", tokenPair.TokenType)
	}
	if tokenPair.ExpiresIn != int64(15*time.Minute/time.Second) {
		t.Errorf("Expected ExpiresIn %d, got %d", int64(15*time.Minute/time.Second), tokenPair.ExpiresIn)
	}
}

func TestValidateAccessToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	tokenPair, err := service.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	claims, err := service.ValidateAccessToken(tokenPair.AccessToken)
	if err != nil {
		t.Fatalf("Expected valid access token, got: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", claims.Username)
	}
	if !claims.IsAccessToken() {
		t.Error("Expected access token type")
	}
}

func TestValidateAccessToken_RejectsRefreshToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	tokenPair, _ := service.GenerateTokenPair("admin")

	_, err := service.ValidateAccessToken(tokenPair.RefreshToken)
	if err != ErrInvalidTokenType {
		t.Errorf("Expected ErrInvalidTokenType, got: %v", err)
	}
}

func TestValidateRefreshToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	tokenPair, _ := service.GenerateTokenPair("admin")

	claims, err := service.ValidateRefreshToken(tokenPair.RefreshToken)
	if err != nil {
		t.Fatalf("Expected valid refresh token, got: %v", err)
	}
	if !claims.IsRefreshToken() {
		t.Error("Expected refresh token type")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})
	other, _ := NewJWTService(JWTConfig{Secret: "another-secret-key-that-is-long!!"})

	tokenPair, _ := service.GenerateTokenPair("admin")

	_, err := other.ValidateToken(tokenPair.AccessToken)
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got: %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{
		Secret:              "test-secret-key-must-be-32-chars!",
		AccessTokenDuration: -time.Minute,
	})

	tokenPair, err := service.GenerateTokenPair("admin")
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	_, err = service.ValidateToken(tokenPair.AccessToken)
	if err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got: %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	_, err := service.ValidateToken("not-a-jwt")
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got: %v", err)
	}
}
