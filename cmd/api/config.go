package main

import (
	"errors"
	"os"
	"strings"
	"time"
)

type apiConfig struct {
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// BootstrapAdminUsername promotes the matching registration to admin.
	BootstrapAdminUsername string

	ShareSecret  []byte
	ShareBaseURL string

	NATSURL  string
	RedisURL string

	// Optional backends; empty disables the feature's routes.
	MeiliURL    string
	MeiliAPIKey string
	AIBaseURL   string
	AIAPIKey    string
	AIModel     string

	Production bool
}

func loadAPIConfig() (apiConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return apiConfig{}, errors.New("JWT_SECRET is required")
	}
	share := strings.TrimSpace(os.Getenv("SHARE_LINK_SECRET"))
	if share == "" {
		// A deployment without a dedicated share secret signs links with
		// the JWT secret.
		share = secret
	}
	cfg := apiConfig{
		JWTSecret:              []byte(secret),
		AccessTokenTTL:         envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:        envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		BootstrapAdminUsername: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_USERNAME")),
		ShareSecret:            []byte(share),
		ShareBaseURL:           strings.TrimSpace(os.Getenv("SHARE_BASE_URL")),
		NATSURL:                strings.TrimSpace(os.Getenv("NATS_URL")),
		RedisURL:               strings.TrimSpace(os.Getenv("REDIS_URL")),
		MeiliURL:               strings.TrimSpace(os.Getenv("MEILI_URL")),
		MeiliAPIKey:            strings.TrimSpace(os.Getenv("MEILI_API_KEY")),
		AIBaseURL:              strings.TrimSpace(os.Getenv("AI_GATEWAY_URL")),
		AIAPIKey:               strings.TrimSpace(os.Getenv("AI_GATEWAY_API_KEY")),
		AIModel:                strings.TrimSpace(os.Getenv("AI_MODEL")),
		Production:             strings.TrimSpace(os.Getenv("APP_ENV")) == "production",
	}
	if cfg.ShareBaseURL == "" {
		cfg.ShareBaseURL = "http://localhost:8080"
	}
	if cfg.AIModel == "" {
		cfg.AIModel = "gpt-4o-mini"
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
