// Package config provides configuration management for photoup.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/photoup/internal/constants"
)

// Store backends.
const (
	BackendHTTP  = "http"
	BackendS3    = "s3"
	BackendAzure = "azure"
)

// Environment overrides, applied after the file and before CLI flags.
const (
	EnvStoreURL    = "PHOTOUP_STORE_URL"
	EnvAPIToken    = "PHOTOUP_API_TOKEN"
	EnvConcurrency = "PHOTOUP_CONCURRENCY"
)

// Config is the photoup configuration file.
//
// INI format:
//
//	[store]
//	backend = http
//	base_url = http://localhost:3000
//	api_token =
//	timeout_seconds = 300
//	rate_per_second = 0
//
//	[upload]
//	concurrency = 4
//	chunk_size_kb = 192
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 0
//	user =
//	password =
//	no_proxy =
//
//	[s3]
//	bucket =
//	region =
//	prefix =
//	endpoint =
//	access_key_id =
//	secret_access_key =
//
//	[azure]
//	container_url =
//	prefix =
//
//	[log]
//	file =
//	level = info
//
//	[notify]
//	enabled = false
//	on_complete = true
//	on_failure = true
type Config struct {
	Store  StoreConfig
	Upload UploadConfig
	Proxy  ProxyConfig
	S3     S3Config
	Azure  AzureConfig
	Log    LogConfig
	Notify NotifyConfig
}

// StoreConfig selects and addresses the remote store.
type StoreConfig struct {
	Backend  string `ini:"backend"`
	BaseURL  string `ini:"base_url"`
	APIToken string `ini:"api_token"`

	// TimeoutSeconds bounds one store request. 0 disables the client timeout.
	TimeoutSeconds int `ini:"timeout_seconds"`

	// RatePerSecond throttles store requests. 0 means unlimited.
	RatePerSecond float64 `ini:"rate_per_second"`
}

// UploadConfig tunes the upload pipeline.
type UploadConfig struct {
	Concurrency int `ini:"concurrency"`
	ChunkSizeKB int `ini:"chunk_size_kb"`
}

// ProxyConfig mirrors the proxy modes supported by internal/http.
type ProxyConfig struct {
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	NoProxy  string `ini:"no_proxy"`
}

// S3Config addresses an S3 bucket used as the store.
type S3Config struct {
	Bucket   string `ini:"bucket"`
	Region   string `ini:"region"`
	Prefix   string `ini:"prefix"`
	Endpoint string `ini:"endpoint"`

	// Static keys; when empty the default AWS credential chain is used
	AccessKeyID     string `ini:"access_key_id"`
	SecretAccessKey string `ini:"secret_access_key"`
}

// AzureConfig addresses an Azure blob container (SAS URL) used as the store.
type AzureConfig struct {
	ContainerURL string `ini:"container_url"`
	Prefix       string `ini:"prefix"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File  string `ini:"file"`
	Level string `ini:"level"`
}

// NotifyConfig controls desktop notifications at the end of a batch.
type NotifyConfig struct {
	Enabled    bool `ini:"enabled"`
	OnComplete bool `ini:"on_complete"`
	OnFailure  bool `ini:"on_failure"`
}

// Validation errors
var (
	ErrUnknownBackend      = errors.New("store backend must be one of http, s3, azure")
	ErrMissingBaseURL      = errors.New("base_url is required for the http backend")
	ErrMissingBucket       = errors.New("bucket is required for the s3 backend")
	ErrMissingContainerURL = errors.New("container_url is required for the azure backend")
	ErrInvalidConcurrency  = fmt.Errorf("concurrency must be between %d and %d", constants.MinMaxConcurrent, constants.MaxMaxConcurrent)
	ErrInvalidChunkSize    = errors.New("chunk_size_kb must be a positive multiple of 3")
	ErrChunkSizeTooLarge   = fmt.Errorf("chunk_size_kb must not exceed %d", constants.MaxEncodeChunkSizeKB)
	ErrInvalidTimeout      = errors.New("timeout_seconds must not be negative")
	ErrInvalidRate         = errors.New("rate_per_second must not be negative")
	ErrInvalidProxyMode    = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:        BackendHTTP,
			BaseURL:        "http://localhost:3000",
			TimeoutSeconds: int(constants.DefaultStoreTimeout / time.Second),
		},
		Upload: UploadConfig{
			Concurrency: constants.DefaultMaxConcurrent,
			ChunkSizeKB: constants.EncodeChunkSize / 1024,
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
		Log: LogConfig{
			Level: "info",
		},
		Notify: NotifyConfig{
			OnComplete: true,
			OnFailure:  true,
		},
	}
}

// Load reads configuration from an INI file and applies environment overrides.
// A missing file yields defaults and no error; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	sections := []struct {
		name string
		dst  interface{}
	}{
		{"store", &cfg.Store},
		{"upload", &cfg.Upload},
		{"proxy", &cfg.Proxy},
		{"s3", &cfg.S3},
		{"azure", &cfg.Azure},
		{"log", &cfg.Log},
		{"notify", &cfg.Notify},
	}
	for _, s := range sections {
		if err := iniFile.Section(s.name).MapTo(s.dst); err != nil {
			return nil, fmt.Errorf("failed to parse [%s]: %w", s.name, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays PHOTOUP_* environment variables onto cfg.
// Unparseable numeric values are ignored.
func (cfg *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvStoreURL)); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" {
		cfg.Store.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvConcurrency)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upload.Concurrency = n
		}
	}
}

// Save writes cfg to an INI file, creating parent directories.
// The API token and proxy password are stored in the file, so it is written 0600.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := EnsureConfigDirectory(path); err != nil {
		return err
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		src  interface{}
	}{
		{"store", &cfg.Store},
		{"upload", &cfg.Upload},
		{"proxy", &cfg.Proxy},
		{"s3", &cfg.S3},
		{"azure", &cfg.Azure},
		{"log", &cfg.Log},
		{"notify", &cfg.Notify},
	}
	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		if err := sec.ReflectFrom(s.src); err != nil {
			return fmt.Errorf("failed to write [%s]: %w", s.name, err)
		}
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the settings needed for the selected backend.
func (cfg *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case BackendHTTP, "":
		if strings.TrimSpace(cfg.Store.BaseURL) == "" {
			return ErrMissingBaseURL
		}
	case BackendS3:
		if strings.TrimSpace(cfg.S3.Bucket) == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if strings.TrimSpace(cfg.Azure.ContainerURL) == "" {
			return ErrMissingContainerURL
		}
	default:
		return ErrUnknownBackend
	}

	if cfg.Upload.Concurrency < constants.MinMaxConcurrent || cfg.Upload.Concurrency > constants.MaxMaxConcurrent {
		return ErrInvalidConcurrency
	}
	if cfg.Upload.ChunkSizeKB > constants.MaxEncodeChunkSizeKB {
		return ErrChunkSizeTooLarge
	}
	if cfg.Upload.ChunkSizeKB <= 0 || (cfg.Upload.ChunkSizeKB*1024)%3 != 0 {
		return ErrInvalidChunkSize
	}
	if cfg.Store.TimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}
	if cfg.Store.RatePerSecond < 0 {
		return ErrInvalidRate
	}

	switch cfg.Proxy.Mode {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// BackendName returns the normalized backend, defaulting to http.
func (cfg *Config) BackendName() string {
	b := strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if b == "" {
		return BackendHTTP
	}
	return b
}

// Timeout returns the store request timeout.
func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.Store.TimeoutSeconds) * time.Second
}

// ChunkSize returns the encoder chunk size in bytes.
func (cfg *Config) ChunkSize() int {
	return cfg.Upload.ChunkSizeKB * 1024
}
