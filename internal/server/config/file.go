package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/patterm/internal/cryptox"
	"github.com/dmitrijs2005/patterm/internal/flagx"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

// FileConfig is the on-disk shape of the configuration. Durations use
// timex.Duration so files may write "15m" as well as integer nanoseconds.
type FileConfig struct {
	EndpointAddrGRPC string   `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc" toml:"endpoint_addr_grpc"`
	EndpointAddrHTTP string   `json:"endpoint_addr_http" yaml:"endpoint_addr_http" toml:"endpoint_addr_http"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`

	StoreBackend   string `json:"store_backend" yaml:"store_backend" toml:"store_backend"`
	DatabaseDSN    string `json:"database_dsn" yaml:"database_dsn" toml:"database_dsn"`
	AuditBackend   string `json:"audit_backend" yaml:"audit_backend" toml:"audit_backend"`
	AuditFilePath  string `json:"audit_file_path" yaml:"audit_file_path" toml:"audit_file_path"`
	ConsentBackend string `json:"consent_backend" yaml:"consent_backend" toml:"consent_backend"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`

	KeyBackend      string `json:"key_backend" yaml:"key_backend" toml:"key_backend"`
	KeyStorePath    string `json:"key_store_path" yaml:"key_store_path" toml:"key_store_path"`
	AgeIdentityPath string `json:"age_identity_path" yaml:"age_identity_path" toml:"age_identity_path"`
	VaultAddr       string `json:"vault_addr" yaml:"vault_addr" toml:"vault_addr"`
	VaultToken      string `json:"vault_token" yaml:"vault_token" toml:"vault_token"`
	VaultMount      string `json:"vault_mount" yaml:"vault_mount" toml:"vault_mount"`
	VaultPathPrefix string `json:"vault_path_prefix" yaml:"vault_path_prefix" toml:"vault_path_prefix"`

	BlobBackend    string `json:"blob_backend" yaml:"blob_backend" toml:"blob_backend"`
	DataDir        string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password" toml:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket" toml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region" toml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint" toml:"s3_base_endpoint"`

	SecretKey     string            `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	SessionTTL    timex.Duration    `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`
	LockTimeout   timex.Duration    `json:"lock_timeout" yaml:"lock_timeout" toml:"lock_timeout"`
	RetryAttempts int               `json:"retry_attempts" yaml:"retry_attempts" toml:"retry_attempts"`
	KDF           cryptox.KDFParams `json:"kdf" yaml:"kdf" toml:"kdf"`
}

func fileConfigFrom(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrGRPC: c.EndpointAddrGRPC,
		EndpointAddrHTTP: c.EndpointAddrHTTP,
		AllowedOrigins:   c.AllowedOrigins,
		LogLevel:         c.LogLevel,
		StoreBackend:     c.StoreBackend,
		DatabaseDSN:      c.DatabaseDSN,
		AuditBackend:     c.AuditBackend,
		AuditFilePath:    c.AuditFilePath,
		ConsentBackend:   c.ConsentBackend,
		RedisAddr:        c.RedisAddr,
		RedisPassword:    c.RedisPassword,
		RedisDB:          c.RedisDB,
		KeyBackend:       c.KeyBackend,
		KeyStorePath:     c.KeyStorePath,
		AgeIdentityPath:  c.AgeIdentityPath,
		VaultAddr:        c.VaultAddr,
		VaultToken:       c.VaultToken,
		VaultMount:       c.VaultMount,
		VaultPathPrefix:  c.VaultPathPrefix,
		BlobBackend:      c.BlobBackend,
		DataDir:          c.DataDir,
		S3RootUser:       c.S3RootUser,
		S3RootPassword:   c.S3RootPassword,
		S3Bucket:         c.S3Bucket,
		S3Region:         c.S3Region,
		S3BaseEndpoint:   c.S3BaseEndpoint,
		SecretKey:        c.SecretKey,
		SessionTTL:       timex.Duration{Duration: c.SessionTTL},
		LockTimeout:      timex.Duration{Duration: c.LockTimeout},
		RetryAttempts:    c.RetryAttempts,
		KDF:              c.KDF,
	}
}

func (f *FileConfig) apply(c *Config) {
	c.EndpointAddrGRPC = f.EndpointAddrGRPC
	c.EndpointAddrHTTP = f.EndpointAddrHTTP
	c.AllowedOrigins = f.AllowedOrigins
	c.LogLevel = f.LogLevel
	c.StoreBackend = f.StoreBackend
	c.DatabaseDSN = f.DatabaseDSN
	c.AuditBackend = f.AuditBackend
	c.AuditFilePath = f.AuditFilePath
	c.ConsentBackend = f.ConsentBackend
	c.RedisAddr = f.RedisAddr
	c.RedisPassword = f.RedisPassword
	c.RedisDB = f.RedisDB
	c.KeyBackend = f.KeyBackend
	c.KeyStorePath = f.KeyStorePath
	c.AgeIdentityPath = f.AgeIdentityPath
	c.VaultAddr = f.VaultAddr
	c.VaultToken = f.VaultToken
	c.VaultMount = f.VaultMount
	c.VaultPathPrefix = f.VaultPathPrefix
	c.BlobBackend = f.BlobBackend
	c.DataDir = f.DataDir
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.SecretKey = f.SecretKey
	c.SessionTTL = f.SessionTTL.Duration
	c.LockTimeout = f.LockTimeout.Duration
	c.RetryAttempts = f.RetryAttempts
	c.KDF = f.KDF
}

// decodeFile unmarshals data into fc according to the file extension.
// Values absent from the file keep what fc already holds. ${VAR}
// references are expanded from the environment before decoding.
func decodeFile(path string, data []byte, fc *FileConfig) error {
	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal([]byte(expanded), fc)
	case ".yaml", ".yml":
		return yaml.Unmarshal([]byte(expanded), fc)
	case ".toml":
		_, err := toml.Decode(expanded, fc)
		return err
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

// parseFile overlays the config file named by -c/-config (or
// PATTERM_CONFIG) onto config. Without a path nothing is loaded. An
// unreadable or malformed file panics, as a bad flag does.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	if err := overlayFile(config, path); err != nil {
		panic(err)
	}
}

func overlayFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := fileConfigFrom(config)
	if err := decodeFile(path, data, fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	fc.apply(config)
	return nil
}

// LoadFile returns the defaults overlaid with the file at path. An empty
// path yields the defaults. Command-line flags are not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
