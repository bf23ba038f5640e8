// Package config reads server settings from the environment, an optional
// .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Port       string
	HealthPort string
	Env        string

	Storage  string
	MongoURI string
	MongoDB  string

	JWTKeys      map[string]string
	JWTActiveKid string
	TokenTTL     time.Duration
	RateLimitRPM int

	TLSCert    string
	TLSKey     string
	RequireTLS bool

	ValkeyAddr string

	MediaDir    string
	MediaSecret string
	MediaURLTTL time.Duration

	CORSOrigin string
	// TrustedProxies are peer addresses whose X-Forwarded-For is believed.
	TrustedProxies []string
}

// Development reports whether APP_ENV selects development mode.
func (c Config) Development() bool { return c.Env == "development" }

// Load parses args (without the program name), loads the env file they name
// and builds a Config from the environment. Flags win over variables.
func Load(args []string) (Config, error) {
	fl := pflag.NewFlagSet("chatsync", pflag.ContinueOnError)
	envFile := fl.String("env-file", ".env", "dotenv file to load before reading the environment")
	port := fl.String("port", "", "HTTP listen port (overrides PORT)")
	if err := fl.Parse(args); err != nil {
		return Config{}, err
	}

	// existing variables are never overwritten by the file
	if err := godotenv.Load(*envFile); err != nil && !(errors.Is(err, fs.ErrNotExist) && !fl.Changed("env-file")) {
		return Config{}, fmt.Errorf("load %s: %w", *envFile, err)
	}

	c := Config{
		Port:         envOrDefault("PORT", "8080"),
		HealthPort:   os.Getenv("HEALTH_PORT"),
		Env:          envOrDefault("APP_ENV", "production"),
		Storage:      strings.ToLower(envOrDefault("STORAGE", StorageMongo)),
		MongoURI:     os.Getenv("MONGODB_URI"),
		MongoDB:      envOrDefault("MONGODB_DB", "chat_db"),
		JWTActiveKid: os.Getenv("JWT_ACTIVE_KID"),
		TLSCert:      os.Getenv("TLS_CERT"),
		TLSKey:       os.Getenv("TLS_KEY"),
		RequireTLS:   os.Getenv("REQUIRE_TLS") == "true",
		ValkeyAddr:   os.Getenv("VALKEY_ADDR"),
		MediaDir:     envOrDefault("MEDIA_DIR", "uploads"),
		MediaSecret:  os.Getenv("MEDIA_SECRET"),
		CORSOrigin:   os.Getenv("CORS_ORIGIN"),
	}
	for _, p := range strings.Split(os.Getenv("TRUSTED_PROXIES"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.TrustedProxies = append(c.TrustedProxies, p)
		}
	}
	if *port != "" {
		c.Port = *port
	}

	var err error
	if c.RateLimitRPM, err = intEnv("RATE_LIMIT_RPM", 10); err != nil {
		return Config{}, err
	}
	if c.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if c.MediaURLTTL, err = durationEnv("MEDIA_URL_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}

	if keys := os.Getenv("JWT_KEYS"); keys != "" {
		if c.JWTKeys, err = parseKeys(keys); err != nil {
			return Config{}, err
		}
		if _, ok := c.JWTKeys[c.JWTActiveKid]; !ok {
			return Config{}, fmt.Errorf("JWT_ACTIVE_KID %q is not in JWT_KEYS", c.JWTActiveKid)
		}
	} else if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWTKeys = map[string]string{"": secret}
		c.JWTActiveKid = ""
	} else {
		return Config{}, errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.MediaSecret == "" {
		c.MediaSecret = c.JWTKeys[c.JWTActiveKid]
	}

	switch c.Storage {
	case StorageMongo:
		if c.MongoURI == "" {
			return Config{}, errors.New("MONGODB_URI must be set when STORAGE=mongo")
		}
	case StorageMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return Config{}, errors.New("TLS_CERT and TLS_KEY must be set together")
	}
	if c.RequireTLS && c.TLSCert == "" {
		return Config{}, errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}
	return c, nil
}

// parseKeys reads "kid:secret,kid2:secret2".
func parseKeys(s string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		if p == "" {
			continue
		}
		kid, secret, ok := strings.Cut(p, ":")
		if !ok || secret == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[kid] = secret
	}
	return keys, nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
