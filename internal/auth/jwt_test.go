package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s3cret"), Issuer: "wirechat", Audience: "ops", TTL: time.Minute}

	token, err := GenerateToken(cfg, "operator")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "operator" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s3cret"), Issuer: "wirechat", TTL: time.Minute}
	good, _ := GenerateToken(cfg, "operator")

	expired, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: "wirechat", TTL: -time.Minute}, "operator")
	otherKey, _ := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: "wirechat", TTL: time.Minute}, "operator")
	otherIssuer, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: "elsewhere", TTL: time.Minute}, "operator")

	tests := []struct {
		name  string
		cfg   *JWTConfig
		token string
	}{
		{"expired", cfg, expired},
		{"wrong key", cfg, otherKey},
		{"wrong issuer", cfg, otherIssuer},
		{"wrong audience", &JWTConfig{Secret: cfg.Secret, Audience: "ops"}, good},
		{"garbage", cfg, "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.cfg, tt.token); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDisabledWithoutSecret(t *testing.T) {
	if _, err := GenerateToken(&JWTConfig{}, "operator"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(nil, "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("validate: %v", err)
	}
}
