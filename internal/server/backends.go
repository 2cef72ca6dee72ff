package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/patterm/internal/server/config"
	"github.com/dmitrijs2005/patterm/internal/server/keys"
	auditrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/audit"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/blobs"
	consentrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/consent"
	keyrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/keys"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/repomanager"
)

// Closer releases a store. Closers run in reverse order of opening.
type Closer func() error

// OpenStore returns the repository manager for cfg.StoreBackend. For
// Postgres the database is opened and migrated; the returned *sql.DB is nil
// for the memory backend.
func OpenStore(ctx context.Context, cfg *config.Config) (repomanager.RepositoryManager, *sql.DB, error) {
	if cfg.StoreBackend != config.BackendPostgres {
		return repomanager.NewMemoryRepositoryManager(), nil, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations error: %w", err)
	}
	return m, db, nil
}

// OpenAuditRepo returns the audit repository selected by cfg.
func OpenAuditRepo(cfg *config.Config, m repomanager.RepositoryManager, db *sql.DB) (auditrepo.Repository, Closer, error) {
	if cfg.AuditBackend == config.BackendFile {
		r, err := auditrepo.OpenFileRepository(cfg.AuditFilePath)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return m.Audit(db), nil, nil
}

func openConsentRepo(ctx context.Context, cfg *config.Config, m repomanager.RepositoryManager, db *sql.DB) (consentrepo.Repository, Closer, error) {
	if cfg.ConsentBackend != config.BackendRedis {
		return m.Consents(db), nil, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping error: %w", err)
	}
	return consentrepo.NewRedisRepository(client, "patterm"), client.Close, nil
}

func openKeyStore(cfg *config.Config) (keyrepo.Repository, keys.Wrapper, Closer, error) {
	if cfg.KeyBackend == config.BackendMemory {
		w, err := keys.NewEphemeralAgeWrapper()
		if err != nil {
			return nil, nil, nil, err
		}
		return keyrepo.NewMemoryRepository(), w, nil, nil
	}

	id, err := keys.LoadOrCreateIdentity(cfg.AgeIdentityPath)
	if err != nil {
		return nil, nil, nil, err
	}
	w := keys.NewAgeWrapper(id)

	switch cfg.KeyBackend {
	case config.BackendVault:
		client, err := keyrepo.NewHashicorpClient(cfg.VaultAddr, cfg.VaultToken)
		if err != nil {
			return nil, nil, nil, err
		}
		return keyrepo.NewHashicorpRepository(client, cfg.VaultMount, cfg.VaultPathPrefix), w, nil, nil
	default:
		r, err := keyrepo.OpenLevelDBRepository(cfg.KeyStorePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return r, w, r.Close, nil
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobs.Repository, error) {
	switch cfg.BlobBackend {
	case config.BackendS3:
		client, err := blobs.NewS3Client(ctx, blobs.S3Options{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return blobs.NewS3Repository(client, cfg.S3Bucket, ""), nil
	case config.BackendFilesystem:
		return blobs.NewFilesystemRepository(cfg.DataDir)
	default:
		return blobs.NewMemoryRepository(), nil
	}
}
