package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IdentityBackend selects where the device identifier is kept.
type IdentityBackend string

const (
	IdentityFile  IdentityBackend = "file"
	IdentityRedis IdentityBackend = "redis"
)

// Config holds environment-based settings
type Config struct {
	Environment string

	APIURL          string
	SocketURL       string
	SocketNamespace string
	ConsoleURL      string

	DataDir       string
	CacheDir      string
	ListenAddress string
	APISecret     string

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	SplashDuration    time.Duration

	IdentityBackend IdentityBackend
	RedisAddress    string
	RedisUsername   string
	RedisPassword   string

	MQTTBrokerURL string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	apiURL := strings.TrimSuffix(os.Getenv("PLAYER_API_URL"), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("PLAYER_API_URL is required")
	}

	dataDir := getEnv("PLAYER_DATA_DIR", defaultDataDir())
	cfg := &Config{
		Environment:     getEnv("PLAYER_ENV", "production"),
		APIURL:          apiURL,
		SocketURL:       getEnv("PLAYER_SOCKET_URL", apiURL),
		SocketNamespace: getEnv("PLAYER_SOCKET_NAMESPACE", "/screen-socket"),
		ConsoleURL:      strings.TrimSuffix(getEnv("PLAYER_CONSOLE_URL", ""), "/"),

		DataDir:       dataDir,
		CacheDir:      getEnv("PLAYER_CACHE_DIR", filepath.Join(dataDir, "cache")),
		ListenAddress: getEnv("PLAYER_LISTEN_ADDRESS", "127.0.0.1:8090"),
		APISecret:     os.Getenv("PLAYER_API_SECRET"),

		IdentityBackend: IdentityBackend(getEnv("IDENTITY_BACKEND", string(IdentityFile))),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisUsername:   os.Getenv("REDIS_USERNAME"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),

		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("PLAYER_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = getEnvDuration("PLAYER_HEARTBEAT_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SplashDuration, err = getEnvDuration("PLAYER_SPLASH_DURATION", 5*time.Second); err != nil {
		return nil, err
	}

	switch cfg.IdentityBackend {
	case IdentityFile, IdentityRedis:
	default:
		return nil, fmt.Errorf("IDENTITY_BACKEND must be %q or %q, got %q", IdentityFile, IdentityRedis, cfg.IdentityBackend)
	}
	return cfg, nil
}

// IdentityPath is the file the device identifier is stored in.
func (c *Config) IdentityPath() string {
	return filepath.Join(c.DataDir, "identity.json")
}

// IndexPath is the sqlite file holding the media cache index.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "player.db")
}

// ControlEnabled reports whether the JWT-protected control routes are mounted.
func (c *Config) ControlEnabled() bool {
	return c.APISecret != ""
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "medusa-player")
	}
	return "./data"
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, val)
	}
	return d, nil
}
