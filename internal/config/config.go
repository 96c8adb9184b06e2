package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// RAG backend.
	RagAPIBaseURL        string `yaml:"ragApiBaseURL"`
	BackendTokenKeyPath  string `yaml:"backendTokenKeyPath"`
	BackendTokenKeyID    string `yaml:"backendTokenKeyID"`
	BackendTokenIssuer   string `yaml:"backendTokenIssuer"`
	BackendTokenAudience string `yaml:"backendTokenAudience"`

	// Polling.
	PollIntervalSeconds    int `yaml:"pollIntervalSeconds"`
	PollMaxDurationSeconds int `yaml:"pollMaxDurationSeconds"`

	// Session directory.
	DirectoryDriver string `yaml:"directoryDriver"` // postgres | redis | memory
	DatabaseURL     string `yaml:"databaseURL"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`

	// Uploaded PDF retention.
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	// Submission rate limit per user.
	SubmitLimit         int `yaml:"submitLimit"`
	SubmitWindowSeconds int `yaml:"submitWindowSeconds"`

	// Upload bounds.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("RAGDESK_API_BASE_URL"); v != "" {
		cfg.RagAPIBaseURL = v
	}
	if v := os.Getenv("RAGDESK_TOKEN_KEY_PATH"); v != "" {
		cfg.BackendTokenKeyPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RAGDESK_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("RAGDESK_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}

func validate(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	// The backend base URL is a fatal startup condition: nothing in
	// this service works without the status client.
	if cfg.RagAPIBaseURL == "" {
		return errors.New("config: ragApiBaseURL is required (set in config.yaml or RAGDESK_API_BASE_URL)")
	}
	switch cfg.DirectoryDriver {
	case "", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres directory")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis directory")
		}
	default:
		return fmt.Errorf("config: unknown directory driver %q", cfg.DirectoryDriver)
	}
	if cfg.PollIntervalSeconds < 0 || cfg.PollMaxDurationSeconds < 0 {
		return errors.New("config: polling durations must not be negative")
	}
	return nil
}
