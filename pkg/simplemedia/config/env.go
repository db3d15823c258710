package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Server (cmd/simplemedia-server only):
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
// Document store:
//
//	DATABASE_URL - one of:
//	               - "" or "memory" - in-memory store (default)
//	               - "postgres://..." or "postgresql://..." - Postgres
//	               - "mongodb://..." or "mongodb+srv://..." - MongoDB
//	DB_SCHEMA - Postgres schema for the documents table
//	MONGO_DATABASE - MongoDB database name (default: "simplemedia")
//
// Storage:
//
//	STORAGE_URL - one of:
//	              - "memory://" - in-memory storage (default)
//	              - "file:///path/to/data" - filesystem storage
//	              - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	              - "minio://bucket?endpoint=localhost:9000&ssl=false"
//	STORAGE_PUBLIC_URL - prefix for returned object URLs
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION - credentials for s3 and minio
//
// Other:
//
//	REDIS_URL - enables the Redis reconciliation queue
//	WEBP_QUALITY - lossy WebP quality (default: 80)
//	MAX_CONFLICT_RETRIES - collection update attempts (default: 3)
//	NO_ARCHIVE_DESTINATIONS - comma separated destinations that skip the archive
//	ENABLE_METRICS - Prometheus counters (default: true)
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "REDIS_URL"); ok {
			c.RedisURL = v
		}
		if v, ok, err := parseIntEnv(prefix, "WEBP_QUALITY"); err != nil {
			return err
		} else if ok {
			c.WebPQuality = v
		}
		if v, ok, err := parseIntEnv(prefix, "MAX_CONFLICT_RETRIES"); err != nil {
			return err
		} else if ok {
			c.MaxConflictRetries = v
		}
		if v, ok := lookupEnv(prefix, "NO_ARCHIVE_DESTINATIONS"); ok {
			c.NoArchiveDestinations = splitList(v)
		}
		if v, ok, err := parseBoolEnv(prefix, "ENABLE_METRICS"); err != nil {
			return err
		} else if ok {
			c.EnableMetrics = v
		}
		return nil
	}
}

// applyDatabaseEnv applies document store configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
		c.DBSchema = v
	}
	if v, ok := lookupEnv(prefix, "MONGO_DATABASE"); ok && v != "" {
		c.MongoDatabase = v
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	switch {
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
	case strings.HasPrefix(dbURL, "mongodb://"), strings.HasPrefix(dbURL, "mongodb+srv://"):
		c.DatabaseType = "mongo"
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'mongodb://...')", dbURL)
	}
	c.DatabaseURL = dbURL
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "STORAGE_PUBLIC_URL"); ok {
		c.Storage.PublicBaseURL = v
	}

	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.Storage.Type = "memory"
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if u.Host != "" {
			// file://relative/dir
			path = u.Host + u.Path
		}
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage.Type = "fs"
		c.Storage.BaseDir = path
		return nil

	case "s3", "minio":
		if u.Host == "" {
			return fmt.Errorf("%s bucket name cannot be empty in STORAGE_URL", u.Scheme)
		}
		q := u.Query()
		c.Storage.Type = u.Scheme
		c.Storage.Bucket = u.Host
		c.Storage.Endpoint = q.Get("endpoint")
		c.Storage.Region = q.Get("region")
		if b, err := strconv.ParseBool(q.Get("path_style")); err == nil {
			c.Storage.UsePathStyle = b
		}
		if b, err := strconv.ParseBool(q.Get("ssl")); err == nil {
			c.Storage.UseSSL = b
		}
		if b, err := strconv.ParseBool(q.Get("create_bucket")); err == nil {
			c.Storage.CreateBucket = b
		}

		if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
			c.Storage.AccessKeyID = accessKey
		}
		if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
			c.Storage.SecretAccessKey = secretKey
		}
		if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && c.Storage.Region == "" {
			c.Storage.Region = region
		}
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...' or 'minio://...')", storageURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
