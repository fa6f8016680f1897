// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SearchConfig provides settings for the location search client.
type SearchConfig interface {
	GetLocationSearchURL() string
	GetLocationSearchMode() string
	GetLocationSearchTimeout() time.Duration
	GetLocationSearchUserAgent() string
}

// DiscoveryConfig provides the bounds of a discovery run.
type DiscoveryConfig interface {
	GetDiscoveryMaxQueries() int
	GetDiscoveryMaxDepth() int
	GetDiscoveryMinRequestInterval() time.Duration
	GetDiscoveryMaxRetries() int
	GetDiscoveryRetryBaseDelay() time.Duration
	GetDiscoveryConcurrency() int
	GetDiscoveryFatalThreshold() int
	GetDiscoveryExpandSynonyms() bool
	GetDiscoveryKeepRaw() bool
	GetSynonymCollisionPolicy() string
	GetDiscoverySeedsFile() string
}

// CacheConfig provides settings for the Redis query cache.
type CacheConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetQueryCacheTTL() time.Duration
	IsQueryCacheEnabled() bool
}

// ArtifactConfig provides settings for the filesystem artifact sink.
type ArtifactConfig interface {
	GetArtifactOutputDir() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOBucketTaxonomy() string
	IsMinIOEnabled() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetTaxonomyRebuildCron() string
	GetTaxonomyRunRetention() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env         string
	DatabaseURL string

	LocationSearchURL       string
	LocationSearchMode      string
	LocationSearchTimeout   time.Duration
	LocationSearchUserAgent string

	DiscoveryMaxQueries         int
	DiscoveryMaxDepth           int
	DiscoveryMinRequestInterval time.Duration
	DiscoveryMaxRetries         int
	DiscoveryRetryBaseDelay     time.Duration
	DiscoveryConcurrency        int
	DiscoveryFatalThreshold     int
	DiscoveryExpandSynonyms     bool
	DiscoveryKeepRaw            bool
	SynonymCollisionPolicy      string
	DiscoverySeedsFile          string

	RedisURL         string
	RedisTLSInsecure bool
	QueryCacheTTL    time.Duration

	ArtifactOutputDir string

	MinIOEndpoint       string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOUseSSL         bool
	MinIOBucketTaxonomy string

	AsynqQueueName       string
	AsynqConcurrency     int
	TaxonomyRebuildCron  string
	TaxonomyRunRetention time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// SearchConfig implementation
func (c *Config) GetLocationSearchURL() string            { return c.LocationSearchURL }
func (c *Config) GetLocationSearchMode() string           { return c.LocationSearchMode }
func (c *Config) GetLocationSearchTimeout() time.Duration { return c.LocationSearchTimeout }
func (c *Config) GetLocationSearchUserAgent() string      { return c.LocationSearchUserAgent }

// DiscoveryConfig implementation
func (c *Config) GetDiscoveryMaxQueries() int                   { return c.DiscoveryMaxQueries }
func (c *Config) GetDiscoveryMaxDepth() int                     { return c.DiscoveryMaxDepth }
func (c *Config) GetDiscoveryMinRequestInterval() time.Duration { return c.DiscoveryMinRequestInterval }
func (c *Config) GetDiscoveryMaxRetries() int                   { return c.DiscoveryMaxRetries }
func (c *Config) GetDiscoveryRetryBaseDelay() time.Duration     { return c.DiscoveryRetryBaseDelay }
func (c *Config) GetDiscoveryConcurrency() int                  { return c.DiscoveryConcurrency }
func (c *Config) GetDiscoveryFatalThreshold() int               { return c.DiscoveryFatalThreshold }
func (c *Config) GetDiscoveryExpandSynonyms() bool              { return c.DiscoveryExpandSynonyms }
func (c *Config) GetDiscoveryKeepRaw() bool                     { return c.DiscoveryKeepRaw }
func (c *Config) GetSynonymCollisionPolicy() string             { return c.SynonymCollisionPolicy }
func (c *Config) GetDiscoverySeedsFile() string                 { return c.DiscoverySeedsFile }

// CacheConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetQueryCacheTTL() time.Duration { return c.QueryCacheTTL }
func (c *Config) IsQueryCacheEnabled() bool       { return c.RedisURL != "" && c.QueryCacheTTL > 0 }

// ArtifactConfig implementation
func (c *Config) GetArtifactOutputDir() string { return c.ArtifactOutputDir }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string       { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string      { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string      { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool           { return c.MinIOUseSSL }
func (c *Config) GetMinIOBucketTaxonomy() string { return c.MinIOBucketTaxonomy }
func (c *Config) IsMinIOEnabled() bool           { return c.MinIOEndpoint != "" }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string              { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int               { return c.AsynqConcurrency }
func (c *Config) GetTaxonomyRebuildCron() string         { return c.TaxonomyRebuildCron }
func (c *Config) GetTaxonomyRunRetention() time.Duration { return c.TaxonomyRunRetention }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		LocationSearchURL:       getEnv("LOCATION_SEARCH_URL", "https://www.imovirtual.com/api/locations"),
		LocationSearchMode:      strings.ToLower(getEnv("LOCATION_SEARCH_MODE", "rest")),
		LocationSearchTimeout:   mustDuration(getEnv("LOCATION_SEARCH_TIMEOUT", "10s")),
		LocationSearchUserAgent: getEnv("LOCATION_SEARCH_USER_AGENT", "Mozilla/5.0 (compatible; LocationMapper/1.0)"),

		DiscoveryMaxQueries:         mustInt(getEnv("DISCOVERY_MAX_QUERIES", "5000")),
		DiscoveryMaxDepth:           mustInt(getEnv("DISCOVERY_MAX_DEPTH", "4")),
		DiscoveryMinRequestInterval: mustDuration(getEnv("DISCOVERY_MIN_REQUEST_INTERVAL", "250ms")),
		DiscoveryMaxRetries:         mustInt(getEnv("DISCOVERY_MAX_RETRIES", "3")),
		DiscoveryRetryBaseDelay:     mustDuration(getEnv("DISCOVERY_RETRY_BASE_DELAY", "500ms")),
		DiscoveryConcurrency:        mustInt(getEnv("DISCOVERY_CONCURRENCY", "4")),
		DiscoveryFatalThreshold:     mustInt(getEnv("DISCOVERY_FATAL_THRESHOLD", "10")),
		DiscoveryExpandSynonyms:     strings.EqualFold(getEnv("DISCOVERY_EXPAND_SYNONYMS", "false"), "true"),
		DiscoveryKeepRaw:            strings.EqualFold(getEnv("DISCOVERY_KEEP_RAW", "true"), "true"),
		SynonymCollisionPolicy:      strings.ToLower(getEnv("SYNONYM_COLLISION_POLICY", "first-wins")),
		DiscoverySeedsFile:          getEnv("DISCOVERY_SEEDS_FILE", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		QueryCacheTTL:    mustDuration(getEnv("QUERY_CACHE_TTL", "24h")),

		ArtifactOutputDir: getEnv("ARTIFACT_OUTPUT_DIR", "./output"),

		MinIOEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:         strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOBucketTaxonomy: getEnv("MINIO_BUCKET_TAXONOMY", "location-taxonomy"),

		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "1")),
		TaxonomyRebuildCron:  getEnv("TAXONOMY_REBUILD_CRON", ""),
		TaxonomyRunRetention: mustDuration(getEnv("TAXONOMY_RUN_RETENTION", "2160h")),
	}

	if cfg.LocationSearchURL == "" {
		return nil, fmt.Errorf("LOCATION_SEARCH_URL is required")
	}
	if cfg.LocationSearchMode != "rest" && cfg.LocationSearchMode != "graphql" {
		return nil, fmt.Errorf("LOCATION_SEARCH_MODE must be rest or graphql, got %q", cfg.LocationSearchMode)
	}
	if cfg.LocationSearchTimeout <= 0 {
		return nil, fmt.Errorf("LOCATION_SEARCH_TIMEOUT must be a positive duration")
	}
	if cfg.DiscoveryConcurrency < 1 {
		return nil, fmt.Errorf("DISCOVERY_CONCURRENCY must be at least 1")
	}
	if cfg.SynonymCollisionPolicy != "first-wins" && cfg.SynonymCollisionPolicy != "last-wins" {
		return nil, fmt.Errorf("SYNONYM_COLLISION_POLICY must be first-wins or last-wins, got %q", cfg.SynonymCollisionPolicy)
	}
	if cfg.MinIOEndpoint != "" && (cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "") {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	if cfg.TaxonomyRebuildCron != "" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when TAXONOMY_REBUILD_CRON is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}
