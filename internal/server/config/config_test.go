package config

import (
	"os"
	"testing"
	"time"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/cryptox"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, BackendMemory, c.StoreBackend)
	assert.Equal(t, BackendMemory, c.KeyBackend)
	assert.Equal(t, BackendMemory, c.BlobBackend)
	assert.Equal(t, DefaultSecretKey, c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.SessionTTL)
	assert.Equal(t, 2*time.Second, c.LockTimeout)
	assert.Equal(t, cryptox.DefaultKDFParams(), c.KDF)
	assert.Equal(t, "vault", c.S3Bucket)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Setenv("PATTERM_CONFIG", "")

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		errKeys []string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name: "unknown backends",
			mutate: func(c *Config) {
				c.StoreBackend = "mysql"
				c.KeyBackend = "kms"
				c.BlobBackend = "ftp"
				c.AuditBackend = "syslog"
				c.ConsentBackend = "memcached"
			},
			errKeys: []string{"store_backend", "key_backend", "blob_backend", "audit_backend", "consent_backend"},
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.StoreBackend = BackendPostgres
				c.DatabaseDSN = ""
				c.SecretKey = "s3cr3t"
			},
			errKeys: []string{"database_dsn"},
		},
		{
			name: "default secret with postgres audit",
			mutate: func(c *Config) {
				c.StoreBackend = BackendPostgres
				c.DatabaseDSN = "postgres://localhost/patterm"
			},
			errKeys: []string{"secret_key"},
		},
		{
			name: "default secret with file audit",
			mutate: func(c *Config) {
				c.AuditBackend = BackendFile
				c.AuditFilePath = "data/audit.jsonl"
			},
			errKeys: []string{"secret_key"},
		},
		{
			name: "file audit with own secret",
			mutate: func(c *Config) {
				c.StoreBackend = BackendPostgres
				c.DatabaseDSN = "postgres://localhost/patterm"
				c.AuditBackend = BackendFile
				c.AuditFilePath = "data/audit.jsonl"
				c.SecretKey = "s3cr3t"
			},
		},
		{
			name: "persisted keys need an age identity",
			mutate: func(c *Config) {
				c.KeyBackend = BackendLevelDB
				c.AgeIdentityPath = ""
			},
			errKeys: []string{"age_identity_path"},
		},
		{
			name: "durations and secret",
			mutate: func(c *Config) {
				c.SessionTTL = 0
				c.LockTimeout = -time.Second
				c.SecretKey = "  "
			},
			errKeys: []string{"session_ttl", "lock_timeout", "secret_key"},
		},
		{
			name:    "weak kdf",
			mutate:  func(c *Config) { c.KDF.Iterations = 1 },
			errKeys: []string{"kdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)

			err := c.Validate()
			if len(tt.errKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			errs, ok := err.(errsx.Map)
			require.True(t, ok, "expected errsx.Map, got %T", err)
			assert.Len(t, errs, len(tt.errKeys))
			for _, k := range tt.errKeys {
				_, ok := errs[k]
				assert.True(t, ok, "missing %q", k)
			}
		})
	}
}
