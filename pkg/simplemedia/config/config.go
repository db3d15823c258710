package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-media/pkg/simplemedia"
	docmemory "github.com/tendant/simple-media/pkg/simplemedia/docstore/memory"
	docmongo "github.com/tendant/simple-media/pkg/simplemedia/docstore/mongo"
	docpg "github.com/tendant/simple-media/pkg/simplemedia/docstore/postgres"
	redissink "github.com/tendant/simple-media/pkg/simplemedia/events/redis"
	"github.com/tendant/simple-media/pkg/simplemedia/imagecodec"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	miniostorage "github.com/tendant/simple-media/pkg/simplemedia/storage/minio"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		MongoDatabase:      "simplemedia",
		Storage:            StorageConfig{Type: "memory"},
		WebPQuality:        imagecodec.DefaultQuality,
		MaxConflictRetries: 3,
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// ServerConfig represents configuration for the simple-media service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Document store configuration
	DatabaseURL   string
	DatabaseType  string // "memory", "postgres", "mongo"
	DBSchema      string // Postgres schema holding the documents table
	MongoDatabase string

	Storage StorageConfig

	// Reconciliation queue, optional
	RedisURL string

	WebPQuality        int
	MaxConflictRetries int

	// Destinations that never get an archive entry
	NoArchiveDestinations []string

	EnableEventLogging bool
	EnableMetrics      bool
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type string // "memory", "fs", "s3", "minio"

	BaseDir string // fs

	Bucket          string // s3, minio
	Region          string // s3
	Endpoint        string // s3 (URL), minio (host:port)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // s3
	UseSSL          bool // minio
	CreateBucket    bool

	// PublicBaseURL overrides the prefix of returned object URLs
	PublicBaseURL string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres", "mongo":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'mongo'")
	}
	if c.DatabaseType == "mongo" && c.MongoDatabase == "" {
		return errors.New("mongo_database is required when using mongo")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("storage base_dir is required for fs storage")
		}
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for %s storage", c.Storage.Type)
		}
		if c.Storage.Type == "minio" && c.Storage.Endpoint == "" {
			return errors.New("storage endpoint is required for minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.WebPQuality < 0 || c.WebPQuality > 100 {
		return fmt.Errorf("webp_quality must be between 0 and 100, got %d", c.WebPQuality)
	}
	if c.MaxConflictRetries < 1 {
		return fmt.Errorf("max_conflict_retries must be at least 1, got %d", c.MaxConflictRetries)
	}
	return nil
}

// Runtime holds a built service and the backends it owns.
type Runtime struct {
	Service   simplemedia.Service
	Docs      simplemedia.DocumentStore
	Blobs     simplemedia.BlobStore
	Reconcile *redissink.Sink // nil unless RedisURL is set
	Registry  *prometheus.Registry

	closers []func()
}

// Close releases connections opened by BuildService.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildService constructs every backend once and injects them into a Service.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	docs, err := c.buildDocumentStore(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build document store: %w", err)
	}
	rt.Docs = docs

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	rt.Blobs = blobs

	var sinks simplemedia.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplemedia.NewLoggingEventSink(logger))
	}
	if c.EnableMetrics {
		rt.Registry = prometheus.NewRegistry()
		sink, err := metrics.NewSink("", rt.Registry)
		if err != nil {
			rt.Close()
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if c.RedisURL != "" {
		sink, err := redissink.Dial(ctx, c.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Reconcile = sink
		rt.closers = append(rt.closers, func() { _ = sink.Close() })
		sinks = append(sinks, sink)
	}

	options := []simplemedia.Option{
		simplemedia.WithDocumentStore(docs),
		simplemedia.WithBlobStore(blobs),
		simplemedia.WithCodec(imagecodec.New(imagecodec.WithQuality(float32(c.WebPQuality)))),
		simplemedia.WithLogger(logger),
		simplemedia.WithMaxConflictRetries(c.MaxConflictRetries),
	}
	if len(sinks) > 0 {
		options = append(options, simplemedia.WithEventSink(sinks))
	}
	for _, dest := range c.NoArchiveDestinations {
		options = append(options, simplemedia.WithDestination(dest, simplemedia.Destination{Archive: false}))
	}

	svc, err := simplemedia.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

func (c *ServerConfig) buildDocumentStore(ctx context.Context, rt *Runtime) (simplemedia.DocumentStore, error) {
	switch c.DatabaseType {
	case "memory":
		return docmemory.New(), nil

	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		if schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		store := docpg.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case "mongo":
		store, err := docmongo.Connect(ctx, docmongo.Config{URI: c.DatabaseURL, Database: c.MongoDatabase})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close(context.Background()) })
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildBlobStore(ctx context.Context) (simplemedia.BlobStore, error) {
	sc := c.Storage
	switch sc.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: sc.BaseDir, BaseURL: sc.PublicBaseURL})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 sc.Region,
			Bucket:                 sc.Bucket,
			AccessKeyID:            sc.AccessKeyID,
			SecretAccessKey:        sc.SecretAccessKey,
			Endpoint:               sc.Endpoint,
			UsePathStyle:           sc.UsePathStyle,
			PublicBaseURL:          sc.PublicBaseURL,
			CreateBucketIfNotExist: sc.CreateBucket,
		})

	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:        strings.TrimPrefix(strings.TrimPrefix(sc.Endpoint, "https://"), "http://"),
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			Bucket:          sc.Bucket,
			UseSSL:          sc.UseSSL,
			PublicBaseURL:   sc.PublicBaseURL,
			EnsureBucket:    sc.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", sc.Type)
	}
}
