package hosting

import (
	"fmt"

	simplecontent "github.com/tendant/simple-content/pkg/simplecontent"
	simpleconfig "github.com/tendant/simple-content/pkg/simplecontent/config"
)

// StoreConfig selects the simple-content metadata store and storage backend.
type StoreConfig struct {
	DatabaseType   string
	DatabaseURL    string
	DatabaseSchema string
	Backend        string // s3 or memory

	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string
	S3UseSSL       bool
	S3UsePathStyle bool
}

// BuildService creates the simple-content service staging uploads go to.
func BuildService(cfg StoreConfig) (simplecontent.Service, error) {
	opts := []simpleconfig.Option{
		simpleconfig.WithDatabase(cfg.DatabaseType, cfg.DatabaseURL),
		simpleconfig.WithDatabaseSchema(cfg.DatabaseSchema),
		simpleconfig.WithDefaultStorage(cfg.Backend),
	}

	switch cfg.Backend {
	case "s3":
		opts = append(opts, simpleconfig.WithS3StorageFull(
			"s3",
			cfg.S3Bucket,
			cfg.S3Region,
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			cfg.S3Endpoint,
			cfg.S3UseSSL,
			cfg.S3UsePathStyle,
		))
	case "memory":
		opts = append(opts, simpleconfig.WithMemoryStorage("memory"))
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	// Delegated URLs make GetContentDetails return presigned download links.
	opts = append(opts,
		simpleconfig.WithEventLogging(false),
		simpleconfig.WithStorageDelegatedURLs(),
	)

	serverCfg, err := simpleconfig.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load simplecontent config: %w", err)
	}
	svc, err := serverCfg.BuildService()
	if err != nil {
		return nil, fmt.Errorf("build simplecontent service: %w", err)
	}
	return svc, nil
}
