package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrMisconfigured = errors.New("config invalid")

// Config carries everything cmd/api needs to wire the service.
type Config struct {
	Addr         string
	PostgresDSN  string
	RedisAddr    string
	RedisDB      int
	StoreTimeout time.Duration

	Auth   AuthConfig
	Cookie CookieConfig
}

// AuthConfig holds token signing material and lifetimes.
type AuthConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// CookieConfig controls how token cookies are written.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// Load reads configuration from the environment. Token secrets are required;
// everything else has a sensible default.
func Load() (Config, error) {
	accessSecret, err := secret("ACCESS_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}
	refreshSecret, err := secret("REFRESH_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}
	if accessSecret == refreshSecret {
		return Config{}, fmt.Errorf("%w: access and refresh secrets must differ", ErrMisconfigured)
	}

	accessTTL, err := duration("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	refreshTTL, err := duration("REFRESH_TOKEN_TTL", 168*time.Hour)
	if err != nil {
		return Config{}, err
	}
	storeTimeout, err := duration("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	cookieSecure, err := boolean("TH_COOKIE_SECURE", true)
	if err != nil {
		return Config{}, err
	}
	cookieSameSite, err := sameSite(getenv("TH_COOKIE_SAMESITE", "lax"))
	if err != nil {
		return Config{}, err
	}
	if cookieSameSite == http.SameSiteNoneMode && !cookieSecure {
		return Config{}, fmt.Errorf("%w: SameSite=None requires Secure cookies", ErrMisconfigured)
	}

	return Config{
		Addr:         getenv("TH_ADDR", ":8080"),
		PostgresDSN:  os.Getenv("TH_PG_DSN"),
		RedisAddr:    os.Getenv("TH_REDIS_ADDR"),
		RedisDB:      0,
		StoreTimeout: storeTimeout,
		Auth: AuthConfig{
			Issuer:        getenv("TH_TOKEN_ISSUER", "taskhive"),
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			AccessTTL:     accessTTL,
			RefreshTTL:    refreshTTL,
		},
		Cookie: CookieConfig{
			Domain:   os.Getenv("TH_COOKIE_DOMAIN"),
			Path:     getenv("TH_COOKIE_PATH", "/"),
			Secure:   cookieSecure,
			SameSite: cookieSameSite,
		},
	}, nil
}

// secret resolves KEY_FILE indirection before falling back to KEY itself, so
// secrets can be mounted as files instead of living in the environment.
func secret(key string) (string, error) {
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: read %s_FILE: %v", ErrMisconfigured, key, err)
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrMisconfigured, key)
	}
	return v, nil
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrMisconfigured, key, raw)
	}
	return d, nil
}

func boolean(key string, fallback bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return fallback, nil
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: invalid %s", ErrMisconfigured, key)
	}
}

func sameSite(raw string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: invalid TH_COOKIE_SAMESITE %q", ErrMisconfigured, raw)
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
