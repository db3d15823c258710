package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the document store backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory", "postgres", "mongo":
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'mongo', got: %s", dbType)
		}
		if dbType != "memory" && url == "" {
			return fmt.Errorf("database URL is required for %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMongoDatabase sets the MongoDB database name
func WithMongoDatabase(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("mongo database name cannot be empty")
		}
		c.MongoDatabase = name
		return nil
	}
}

// WithMemoryStorage selects in-memory blob storage
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemStorage selects filesystem blob storage
func WithFilesystemStorage(baseDir, publicBaseURL string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: baseDir, PublicBaseURL: publicBaseURL}
		return nil
	}
}

// WithS3Storage selects S3 blob storage. Credentials, endpoint and the public
// URL are taken from storage.
func WithS3Storage(storage StorageConfig) Option {
	return func(c *ServerConfig) error {
		if storage.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		storage.Type = "s3"
		c.Storage = storage
		return nil
	}
}

// WithMinioStorage selects MinIO blob storage
func WithMinioStorage(storage StorageConfig) Option {
	return func(c *ServerConfig) error {
		if storage.Bucket == "" {
			return fmt.Errorf("minio bucket cannot be empty")
		}
		if storage.Endpoint == "" {
			return fmt.Errorf("minio endpoint cannot be empty")
		}
		storage.Type = "minio"
		c.Storage = storage
		return nil
	}
}

// WithRedis enables the Redis reconciliation queue
func WithRedis(url string) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = url
		return nil
	}
}

// WithWebPQuality sets the lossy WebP quality (0-100)
func WithWebPQuality(quality int) Option {
	return func(c *ServerConfig) error {
		if quality < 0 || quality > 100 {
			return fmt.Errorf("webp quality must be between 0 and 100, got: %d", quality)
		}
		c.WebPQuality = quality
		return nil
	}
}

// WithNoArchive excludes destinations from the archive
func WithNoArchive(destinations ...string) Option {
	return func(c *ServerConfig) error {
		c.NoArchiveDestinations = append(c.NoArchiveDestinations, destinations...)
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables the Prometheus event sink
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}
