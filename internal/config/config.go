package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile" env:"CHATSYNC_PROFILE"`
	Directory      Directory `toml:"directory"`
	Provider       Provider  `toml:"provider"`
	Media          Media     `toml:"media"`
	S3             S3        `toml:"s3"`
	Log            Log       `toml:"log"`
}

// Directory configures the user directory / auth backend.
type Directory struct {
	BaseURL string        `toml:"base_url" env:"CHATSYNC_DIRECTORY_URL" env-default:"http://localhost:8080"`
	Timeout time.Duration `toml:"timeout" env:"CHATSYNC_DIRECTORY_TIMEOUT" env-default:"30s"`
}

// Provider configures the messaging provider session.
type Provider struct {
	// Mode selects the provider backend. Only "local" ships in this repository.
	Mode             string        `toml:"mode" env:"CHATSYNC_PROVIDER_MODE" env-default:"local"`
	PageSize         int           `toml:"page_size" env:"CHATSYNC_PAGE_SIZE" env-default:"30"`
	TokenTTL         time.Duration `toml:"token_ttl" env:"CHATSYNC_TOKEN_TTL" env-default:"1h"`
	TokenRefreshLead time.Duration `toml:"token_refresh_lead" env:"CHATSYNC_TOKEN_REFRESH_LEAD" env-default:"3m"`
}

// Media configures the media URL cache.
type Media struct {
	CacheCapacity int           `toml:"cache_capacity" env:"CHATSYNC_MEDIA_CACHE_CAPACITY" env-default:"100"`
	URLTTL        time.Duration `toml:"url_ttl" env:"CHATSYNC_MEDIA_URL_TTL" env-default:"5m"`
}

// Log configures the daemon log. Quiet turns off the stderr copy.
type Log struct {
	Level string `toml:"level" env:"CHATSYNC_LOG_LEVEL" env-default:"info"`
	Quiet bool   `toml:"quiet" env:"CHATSYNC_LOG_QUIET"`
}

// S3 holds S3/MinIO storage configuration for media payloads.
type S3 struct {
	Endpoint        string `toml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `toml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `toml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `toml:"bucket" env:"S3_BUCKET" env-default:"chatsync-media"`
	Region          string `toml:"region" env:"S3_REGION" env-default:"us-east-1"`
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve loads the file at path when present, then applies environment
// overrides and defaults. A missing file is not an error.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
