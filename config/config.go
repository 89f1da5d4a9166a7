package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/franksops/cloudsave/provider"
)

// Config holds the complete application configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Transfer TransferConfig `yaml:"transfer" json:"transfer"`
	State    StateConfig    `yaml:"state" json:"state"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// StorageConfig holds per-backend settings, keyed by URL scheme.
type StorageConfig struct {
	S3    S3Config    `yaml:"s3" json:"s3"`
	Minio MinioConfig `yaml:"minio" json:"minio"`
	OSS   OSSConfig   `yaml:"oss" json:"oss"`
	File  FileConfig  `yaml:"file" json:"file"`
}

// S3Config configures s3:// destinations. Credentials come from the usual
// AWS sources (environment, shared config, instance role).
type S3Config struct {
	Region       string `yaml:"region" json:"region"`
	Profile      string `yaml:"profile" json:"profile"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	UsePathStyle bool   `yaml:"usePathStyle" json:"usePathStyle"`
	Prefix       string `yaml:"prefix" json:"prefix"`
}

// MinioConfig configures minio:// destinations.
type MinioConfig struct {
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	AccessKey    string `yaml:"accessKey" json:"accessKey"`
	SecretKey    string `yaml:"secretKey" json:"-"`
	SessionToken string `yaml:"sessionToken" json:"-"`
	Region       string `yaml:"region" json:"region"`
	Secure       bool   `yaml:"secure" json:"secure"`
}

// OSSConfig configures oss:// destinations.
type OSSConfig struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId" json:"accessKeyId"`
	AccessKeySecret string `yaml:"accessKeySecret" json:"-"`
	SecurityToken   string `yaml:"securityToken" json:"-"`
	StorageClass    string `yaml:"storageClass" json:"storageClass"`
}

// FileConfig configures file:// destinations. Paths are resolved under Root.
type FileConfig struct {
	Root string `yaml:"root" json:"root"`
}

// TransferConfig holds settings applied to every save.
type TransferConfig struct {
	PartSize       int               `yaml:"partSize" json:"partSize"`
	AbortOnError   bool              `yaml:"abortOnError" json:"abortOnError"`
	Metadata       map[string]string `yaml:"metadata" json:"metadata"`
	MetadataPrefix string            `yaml:"metadataPrefix" json:"metadataPrefix"`
}

// StateConfig configures the transfer journal.
type StateConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// maxPartSize is the largest part object stores accept.
const maxPartSize = 5 * 1024 * 1024 * 1024

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Minio: MinioConfig{Secure: true},
			File:  FileConfig{Root: "/"},
		},
		Transfer: TransferConfig{
			PartSize:     provider.MinPartSize,
			AbortOnError: true,
		},
		State: StateConfig{
			Enabled: true,
			Dir:     defaultStateDir(),
		},
		Logging: LoggingConfig{
			Level:  "warning",
			Format: "text",
		},
	}
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cloudsave")
	}
	return ".cloudsave-state"
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file (path, else the first one found)
// 3. Default values (lowest precedence)
//
// It returns the configuration and a description of where it came from.
func LoadConfig(path string) (*Config, string, error) {
	config := Default()

	source, err := loadFromFile(&config, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if e := loadFromEnv(&config); e != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", e)
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, source, nil
}

func searchPaths() []string {
	paths := []string{
		os.Getenv("CLOUDSAVE_CONFIG"),
		"./cloudsave.yaml",
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "cloudsave", "config.yaml"))
	}
	return paths
}

// loadFromFile loads configuration from YAML file. An explicit path must
// exist; otherwise the search paths are tried in order.
func loadFromFile(config *Config, explicit string) (string, error) {
	if explicit != "" {
		return explicit, readInto(config, explicit)
	}

	for _, path := range searchPaths() {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		return path, readInto(config, path)
	}

	return "built-in defaults (no config file found)", nil
}

func readInto(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from CLOUDSAVE_* environment variables
func loadFromEnv(config *Config) error {
	strs := map[string]*string{
		"CLOUDSAVE_S3_REGION":                &config.Storage.S3.Region,
		"CLOUDSAVE_S3_PROFILE":               &config.Storage.S3.Profile,
		"CLOUDSAVE_S3_ENDPOINT":              &config.Storage.S3.Endpoint,
		"CLOUDSAVE_S3_PREFIX":                &config.Storage.S3.Prefix,
		"CLOUDSAVE_MINIO_ENDPOINT":           &config.Storage.Minio.Endpoint,
		"CLOUDSAVE_MINIO_ACCESS_KEY":         &config.Storage.Minio.AccessKey,
		"CLOUDSAVE_MINIO_SECRET_KEY":         &config.Storage.Minio.SecretKey,
		"CLOUDSAVE_MINIO_REGION":             &config.Storage.Minio.Region,
		"CLOUDSAVE_OSS_ENDPOINT":             &config.Storage.OSS.Endpoint,
		"CLOUDSAVE_OSS_ACCESS_KEY_ID":        &config.Storage.OSS.AccessKeyID,
		"CLOUDSAVE_OSS_ACCESS_KEY_SECRET":    &config.Storage.OSS.AccessKeySecret,
		"CLOUDSAVE_OSS_SECURITY_TOKEN":       &config.Storage.OSS.SecurityToken,
		"CLOUDSAVE_FILE_ROOT":                &config.Storage.File.Root,
		"CLOUDSAVE_STATE_DIR":                &config.State.Dir,
		"CLOUDSAVE_LOG_LEVEL":                &config.Logging.Level,
		"CLOUDSAVE_LOG_FORMAT":               &config.Logging.Format,
		"CLOUDSAVE_TRANSFER_METADATA_PREFIX": &config.Transfer.MetadataPrefix,
	}
	for name, dst := range strs {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}

	bools := map[string]*bool{
		"CLOUDSAVE_S3_PATH_STYLE":           &config.Storage.S3.UsePathStyle,
		"CLOUDSAVE_MINIO_SECURE":            &config.Storage.Minio.Secure,
		"CLOUDSAVE_TRANSFER_ABORT_ON_ERROR": &config.Transfer.AbortOnError,
		"CLOUDSAVE_STATE_ENABLED":           &config.State.Enabled,
	}
	for name, dst := range bools {
		if val := os.Getenv(name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = b
		}
	}

	if val := os.Getenv("CLOUDSAVE_TRANSFER_PART_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid CLOUDSAVE_TRANSFER_PART_SIZE: %w", err)
		}
		config.Transfer.PartSize = size
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Transfer.PartSize < provider.MinPartSize || c.Transfer.PartSize > maxPartSize {
		return fmt.Errorf("invalid part size: %d (must be between %d and %d bytes)",
			c.Transfer.PartSize, provider.MinPartSize, maxPartSize)
	}

	if c.Storage.File.Root == "" || !filepath.IsAbs(c.Storage.File.Root) {
		return fmt.Errorf("file root must be an absolute path: %q", c.Storage.File.Root)
	}

	if c.State.Enabled && c.State.Dir == "" {
		return fmt.Errorf("state directory required when the journal is enabled")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// ToYAML serializes the configuration.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// S3Options maps the s3 section onto the backend options.
func (c *Config) S3Options() provider.S3Options {
	s := c.Storage.S3
	return provider.S3Options{
		Region:       s.Region,
		Profile:      s.Profile,
		Endpoint:     s.Endpoint,
		UsePathStyle: s.UsePathStyle,
		Prefix:       s.Prefix,
	}
}

// MinioOptions maps the minio section onto the backend options.
func (c *Config) MinioOptions() provider.MinioOptions {
	m := c.Storage.Minio
	return provider.MinioOptions{
		Endpoint:     m.Endpoint,
		AccessKey:    m.AccessKey,
		SecretKey:    m.SecretKey,
		SessionToken: m.SessionToken,
		Region:       m.Region,
		Secure:       m.Secure,
	}
}

// OSSOptions maps the oss section onto the backend options.
func (c *Config) OSSOptions() provider.OSSOptions {
	o := c.Storage.OSS
	return provider.OSSOptions{
		Endpoint:        o.Endpoint,
		AccessKeyID:     o.AccessKeyID,
		AccessKeySecret: o.AccessKeySecret,
		SecurityToken:   o.SecurityToken,
		StorageClass:    o.StorageClass,
	}
}

// NewResolver registers a store factory for every configured scheme. The
// network backends connect lazily, on the first save to one of their buckets.
func (c *Config) NewResolver() *provider.Resolver {
	r := provider.NewResolver()
	r.Register("s3", provider.S3Factory(c.S3Options()))
	r.Register("minio", provider.MinioFactory(c.MinioOptions()))
	r.Register("oss", provider.OSSFactory(c.OSSOptions()))
	r.Register("file", provider.LocalFactory(provider.NewLocalStore(c.Storage.File.Root)))
	return r
}

// MetadataMapper builds the mapper for the transfer metadata settings.
func (c *Config) MetadataMapper() *provider.MetadataMapper {
	return provider.NewMetadataMapper(
		provider.WithBaseMetadata(maps.Clone(c.Transfer.Metadata)),
		provider.WithKeyPrefix(c.Transfer.MetadataPrefix),
	)
}

// StatePath is the journal database file.
func (c *Config) StatePath() string {
	return filepath.Join(c.State.Dir, "state.db")
}
