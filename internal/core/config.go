package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"herdsync/internal/blob"
)

// Config is the process configuration. Values come from defaults, then an
// optional YAML file, then HERDSYNC_* environment variables.
type Config struct {
	Local     LocalConfig   `yaml:"local"`
	Remote    RemoteConfig  `yaml:"remote"`
	Auth      AuthConfig    `yaml:"auth"`
	Probe     ProbeConfig   `yaml:"probe"`
	HTTP      HTTPConfig    `yaml:"http"`
	Log       LogConfig     `yaml:"log"`
	LockAfter time.Duration `yaml:"lock_after"`
}

// LocalConfig selects the device-local store.
type LocalConfig struct {
	Driver     string `yaml:"driver"` // memory|sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

// RemoteConfig selects the remote collection store.
type RemoteConfig struct {
	Driver      string      `yaml:"driver"` // memory|postgres|blob|firebase
	PostgresDSN string      `yaml:"postgres_dsn"`
	FirebaseURL string      `yaml:"firebase_url"`
	Blob        blob.Config `yaml:"blob"`
}

// AuthConfig selects the remote auth service.
type AuthConfig struct {
	Driver         string `yaml:"driver"` // memory|firebase
	FirebaseAPIKey string `yaml:"firebase_api_key"`
	Users          string `yaml:"users"` // email:password,... for the memory driver
}

// ProbeConfig configures connectivity probing.
type ProbeConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Local:  LocalConfig{Driver: string(LocalSQLite), SQLitePath: "herdsync.db"},
		Remote: RemoteConfig{Driver: string(RemoteMemory), Blob: blob.Config{Driver: string(blob.DriverFilesystem), FSRoot: "herdsync-blobs"}},
		Auth:   AuthConfig{Driver: string(AuthMemory)},
		Probe: ProbeConfig{
			URL:      "https://clients3.google.com/generate_204",
			Interval: 15 * time.Second,
			Timeout:  5 * time.Second,
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info", Format: "json"},
		LockAfter: 30 * time.Minute,
	}
}

// LoadConfig builds a Config. path may be empty.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HERDSYNC_LOCAL_DRIVER", &cfg.Local.Driver)
	str("HERDSYNC_SQLITE_PATH", &cfg.Local.SQLitePath)
	str("HERDSYNC_REMOTE_DRIVER", &cfg.Remote.Driver)
	str("HERDSYNC_POSTGRES_DSN", &cfg.Remote.PostgresDSN)
	str("HERDSYNC_FIREBASE_URL", &cfg.Remote.FirebaseURL)
	str("HERDSYNC_BLOB_DRIVER", &cfg.Remote.Blob.Driver)
	str("HERDSYNC_BLOB_FS_ROOT", &cfg.Remote.Blob.FSRoot)
	str("HERDSYNC_BLOB_S3_BUCKET", &cfg.Remote.Blob.S3.Bucket)
	str("HERDSYNC_BLOB_S3_REGION", &cfg.Remote.Blob.S3.Region)
	str("HERDSYNC_BLOB_S3_ENDPOINT", &cfg.Remote.Blob.S3.Endpoint)
	str("HERDSYNC_BLOB_S3_ACCESS_KEY_ID", &cfg.Remote.Blob.S3.AccessKeyID)
	str("HERDSYNC_BLOB_S3_SECRET_ACCESS_KEY", &cfg.Remote.Blob.S3.SecretAccessKey)
	str("HERDSYNC_BLOB_S3_SESSION_TOKEN", &cfg.Remote.Blob.S3.SessionToken)
	str("HERDSYNC_AUTH_DRIVER", &cfg.Auth.Driver)
	str("HERDSYNC_FIREBASE_API_KEY", &cfg.Auth.FirebaseAPIKey)
	str("HERDSYNC_AUTH_USERS", &cfg.Auth.Users)
	str("HERDSYNC_PROBE_URL", &cfg.Probe.URL)
	str("HERDSYNC_HTTP_ADDR", &cfg.HTTP.Addr)
	str("HERDSYNC_LOG_LEVEL", &cfg.Log.Level)
	str("HERDSYNC_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := os.LookupEnv("HERDSYNC_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HERDSYNC_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Remote.Blob.S3.PathStyle = b
	}
	for name, dst := range map[string]*time.Duration{
		"HERDSYNC_PROBE_INTERVAL": &cfg.Probe.Interval,
		"HERDSYNC_PROBE_TIMEOUT":  &cfg.Probe.Timeout,
		"HERDSYNC_LOCK_AFTER":     &cfg.LockAfter,
	} {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	return nil
}
