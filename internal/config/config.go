package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config models assessvault.yml.
type Config struct {
	Storage Storage `yaml:"storage"`
	Archive struct {
		MaxDepth    int  `yaml:"max_depth"`
		Concurrency int  `yaml:"concurrency"`
		ConvertJSON bool `yaml:"convert_json"`
	} `yaml:"archive"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		DevLogin  bool          `yaml:"dev_login"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

type Storage struct {
	Backend         string        `yaml:"backend"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with av config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config.storage.bucket is required for the s3 backend")
		}
		if c.Storage.Region == "" {
			return fmt.Errorf("config.storage.region is required for the s3 backend")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return fmt.Errorf("config.storage.access_key_id and secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("config.storage.backend must be 's3' or 'memory', got %q", c.Storage.Backend)
	}
	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("config.storage.signed_url_ttl must be positive")
	}
	if c.Archive.MaxDepth < 1 {
		return fmt.Errorf("config.archive.max_depth must be at least 1")
	}
	if c.Archive.Concurrency < 1 {
		return fmt.Errorf("config.archive.concurrency must be at least 1")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.logging.format must be 'json' or 'console'")
	}
	return nil
}

// ApplyOverrides replaces fields with non-empty values returned by lookup,
// keyed by dotted yaml path (storage.bucket, auth.jwt_secret, ...).
func (c *Config) ApplyOverrides(lookup func(key string) string) error {
	str := map[string]*string{
		"storage.backend":           &c.Storage.Backend,
		"storage.bucket":            &c.Storage.Bucket,
		"storage.region":            &c.Storage.Region,
		"storage.endpoint":          &c.Storage.Endpoint,
		"storage.access_key_id":     &c.Storage.AccessKeyID,
		"storage.secret_access_key": &c.Storage.SecretAccessKey,
		"server.addr":               &c.Server.Addr,
		"server.base_path":          &c.Server.BasePath,
		"auth.jwt_secret":           &c.Auth.JWTSecret,
		"logging.level":             &c.Logging.Level,
		"logging.format":            &c.Logging.Format,
	}
	for key, dst := range str {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"storage.use_path_style": &c.Storage.UsePathStyle,
		"archive.convert_json":   &c.Archive.ConvertJSON,
		"auth.dev_login":         &c.Auth.DevLogin,
	}
	for key, dst := range bools {
		v := lookup(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	ints := map[string]*int{
		"archive.max_depth":   &c.Archive.MaxDepth,
		"archive.concurrency": &c.Archive.Concurrency,
	}
	for key, dst := range ints {
		v := lookup(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	durations := map[string]*time.Duration{
		"storage.signed_url_ttl": &c.Storage.SignedURLTTL,
		"auth.token_ttl":         &c.Auth.TokenTTL,
	}
	for key, dst := range durations {
		v := lookup(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "assessvault.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `storage:
  # s3 talks to any S3 compatible endpoint; memory keeps objects in process.
  backend: memory
  bucket: ""
  region: us-east-1
  endpoint: ""
  access_key_id: ""
  secret_access_key: ""
  use_path_style: false
  signed_url_ttl: 60s

archive:
  max_depth: 32
  concurrency: 8
  convert_json: true

server:
  addr: 127.0.0.1:8080
  base_path: /api

auth:
  jwt_secret: ""
  dev_login: false
  token_ttl: 1h

logging:
  level: info
  format: json
`
