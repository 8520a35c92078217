package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alwanly/cloud-sdk-go/pkg/validator"
)

// ClientCredential is one client allowed to request tokens.
type ClientCredential struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	SigningKey      string             `yaml:"signing_key" validate:"required"`
	Issuer          string             `yaml:"issuer"`
	TokenTTLSeconds int                `yaml:"token_ttl_seconds" validate:"gte=0"`
	AdminUsername   string             `yaml:"admin_username"`
	AdminPassword   string             `yaml:"admin_password"`
	Clients         []ClientCredential `yaml:"clients" validate:"dive"`
}

type LeaseConfig struct {
	// DefaultDurationSeconds applies when an acquire carries no duration
	// header. -1 means infinite.
	DefaultDurationSeconds int `yaml:"default_duration_seconds" validate:"lease_duration"`
}

// EmulatorConfig is the full configuration of the emulator binary.
type EmulatorConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Lease    LeaseConfig    `yaml:"lease"`
}

func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// LoadEmulatorConfig reads the yaml file when path is non-empty, applies
// environment overrides, fills defaults, and validates the result.
func LoadEmulatorConfig(path string) (*EmulatorConfig, error) {
	cfg := &EmulatorConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validator.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *EmulatorConfig) {
	if v := os.Getenv("EMULATOR_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTH_SIGNING_KEY"); v != "" {
		cfg.Auth.SigningKey = v
	}
	if v := os.Getenv("AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("TOKEN_TTL_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Auth.TokenTTLSeconds = i
		}
	}
	if v := os.Getenv("ADMIN_USER"); v != "" {
		cfg.Auth.AdminUsername = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if id := os.Getenv("CLIENT_ID"); id != "" {
		cfg.Auth.Clients = append(cfg.Auth.Clients, ClientCredential{
			ClientID:     id,
			ClientSecret: os.Getenv("CLIENT_SECRET"),
		})
	}
	if v := os.Getenv("LEASE_DEFAULT_DURATION"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Lease.DefaultDurationSeconds = i
		}
	}
}

func applyDefaults(cfg *EmulatorConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/emulator.db"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "cloud-sdk-emulator"
	}
	if cfg.Auth.TokenTTLSeconds == 0 {
		cfg.Auth.TokenTTLSeconds = 3600
	}
	if cfg.Auth.AdminUsername == "" {
		cfg.Auth.AdminUsername = "admin"
	}
	if cfg.Auth.AdminPassword == "" {
		cfg.Auth.AdminPassword = "password"
	}
	if cfg.Lease.DefaultDurationSeconds == 0 {
		cfg.Lease.DefaultDurationSeconds = 60
	}
}
