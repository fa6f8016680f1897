package mapper

import (
	"context"
	"fmt"

	"location_mapper/internal/artifact"
	"location_mapper/internal/discovery"
	"location_mapper/internal/events"
	"location_mapper/internal/locations/cache"
	"location_mapper/internal/locations/client"
	"location_mapper/internal/synonyms"
	"location_mapper/platform/config"
	"location_mapper/platform/db"
	"location_mapper/platform/logger"
	"location_mapper/platform/validator"
)

// OptionsFromConfig maps the DISCOVERY_* settings onto engine options.
func OptionsFromConfig(cfg config.DiscoveryConfig) (discovery.Options, error) {
	policy, err := synonyms.ParsePolicy(cfg.GetSynonymCollisionPolicy())
	if err != nil {
		return discovery.Options{}, err
	}
	return discovery.Options{
		MaxQueries:         cfg.GetDiscoveryMaxQueries(),
		MaxDepth:           cfg.GetDiscoveryMaxDepth(),
		MinRequestInterval: cfg.GetDiscoveryMinRequestInterval(),
		MaxRetries:         cfg.GetDiscoveryMaxRetries(),
		RetryBaseDelay:     cfg.GetDiscoveryRetryBaseDelay(),
		Concurrency:        cfg.GetDiscoveryConcurrency(),
		FatalThreshold:     cfg.GetDiscoveryFatalThreshold(),
		ExpandSynonyms:     cfg.GetDiscoveryExpandSynonyms(),
		CollisionPolicy:    policy,
		KeepResponses:      cfg.GetDiscoveryKeepRaw(),
	}, nil
}

// ResolveRequest picks the seed terms for a run: explicit terms first, then the configured
// seed file, then DefaultSeeds. Option overrides come from the seed file only.
func ResolveRequest(cfg config.DiscoveryConfig, terms []string, val *validator.Validator) (RunRequest, error) {
	if len(terms) > 0 {
		return RunRequest{Seeds: terms}, nil
	}
	if path := cfg.GetDiscoverySeedsFile(); path != "" {
		sf, err := LoadSeedsFile(path, val)
		if err != nil {
			return RunRequest{}, err
		}
		return RunRequest{Seeds: sf.Terms, Options: sf.Options}, nil
	}
	return RunRequest{Seeds: DefaultSeeds}, nil
}

// NewSearchClient builds the HTTP search client, wrapped in the Redis query cache when enabled.
// The returned close function releases the Redis connection.
func NewSearchClient(scfg config.SearchConfig, ccfg config.CacheConfig, log *logger.Logger) (discovery.LocationSearchClient, func() error, error) {
	if log == nil {
		log = logger.Discard()
	}
	mode, err := client.ParseMode(scfg.GetLocationSearchMode())
	if err != nil {
		return nil, nil, err
	}
	search := client.New(client.Options{
		URL:       scfg.GetLocationSearchURL(),
		Mode:      mode,
		Timeout:   scfg.GetLocationSearchTimeout(),
		UserAgent: scfg.GetLocationSearchUserAgent(),
	}, log)

	if !ccfg.IsQueryCacheEnabled() {
		return search, func() error { return nil }, nil
	}

	rdb, err := cache.NewRedisClient(ccfg.GetRedisURL(), ccfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, nil, fmt.Errorf("query cache: %w", err)
	}
	log.Info("query cache enabled", "ttl", ccfg.GetQueryCacheTTL().String())
	return cache.New(search, rdb, ccfg.GetQueryCacheTTL(), log), rdb.Close, nil
}

// NewSinks builds the file sink plus the MinIO and Postgres sinks when they are configured.
// Postgres migrations are applied before the sink is returned.
func NewSinks(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]artifact.Sink, func(), error) {
	if log == nil {
		log = logger.Discard()
	}
	sinks := []artifact.Sink{artifact.NewFileSink(cfg.GetArtifactOutputDir())}
	cleanup := func() {}

	if cfg.IsMinIOEnabled() {
		sink, err := artifact.NewMinIOSink(cfg)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.GetDatabaseURL() != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		sinks = append(sinks, artifact.NewPostgresSink(pool))
		cleanup = pool.Close
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.Info("artifact sinks ready", "sinks", names)
	return sinks, cleanup, nil
}

// NewFromConfig assembles a Service with every collaborator built from cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, bus events.Bus, log *logger.Logger) (*Service, func(), error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	search, closeSearch, err := NewSearchClient(cfg, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	sinks, closeSinks, err := NewSinks(ctx, cfg, log)
	if err != nil {
		_ = closeSearch()
		return nil, nil, err
	}

	cleanup := func() {
		closeSinks()
		if err := closeSearch(); err != nil {
			log.Warn("failed to close query cache", "error", err)
		}
	}
	return NewService(search, sinks, bus, opts, log), cleanup, nil
}
