package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.GetLocationSearchMode())
	assert.Equal(t, 10*time.Second, cfg.GetLocationSearchTimeout())
	assert.Equal(t, 4, cfg.GetDiscoveryConcurrency())
	assert.Equal(t, 250*time.Millisecond, cfg.GetDiscoveryMinRequestInterval())
	assert.Equal(t, "first-wins", cfg.GetSynonymCollisionPolicy())
	assert.True(t, cfg.GetDiscoveryKeepRaw())
	assert.False(t, cfg.IsQueryCacheEnabled())
	assert.False(t, cfg.IsMinIOEnabled())
	assert.Equal(t, "default", cfg.GetAsynqQueueName())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOCATION_SEARCH_MODE", "GraphQL")
	t.Setenv("DISCOVERY_MAX_QUERIES", "120")
	t.Setenv("DISCOVERY_EXPAND_SYNONYMS", "TRUE")
	t.Setenv("SYNONYM_COLLISION_POLICY", "last-wins")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("QUERY_CACHE_TTL", "1h")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "minio")
	t.Setenv("MINIO_SECRET_KEY", "minio123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "graphql", cfg.GetLocationSearchMode())
	assert.Equal(t, 120, cfg.GetDiscoveryMaxQueries())
	assert.True(t, cfg.GetDiscoveryExpandSynonyms())
	assert.Equal(t, "last-wins", cfg.GetSynonymCollisionPolicy())
	assert.True(t, cfg.IsQueryCacheEnabled())
	assert.Equal(t, time.Hour, cfg.GetQueryCacheTTL())
	assert.True(t, cfg.IsMinIOEnabled())
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"LOCATION_SEARCH_MODE": "soap"}},
		{"zero timeout", map[string]string{"LOCATION_SEARCH_TIMEOUT": "nope"}},
		{"zero concurrency", map[string]string{"DISCOVERY_CONCURRENCY": "0"}},
		{"unknown policy", map[string]string{"SYNONYM_COLLISION_POLICY": "random"}},
		{"minio without keys", map[string]string{"MINIO_ENDPOINT": "localhost:9000"}},
		{"cron without redis", map[string]string{"TAXONOMY_REBUILD_CRON": "@daily"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
