package config

import (
	"strings"
	"time"
)

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	// Enabled selects Redis-backed stores; when false everything stays in memory.
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"         validate:"gte=0,lte=15"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"tipster:"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// CredentialKey is a base64 AES-256 key sealing stored credentials. Empty stores
	// them unencrypted.
	CredentialKey string `env:"CREDENTIAL_KEY"`
}

// Sanitize normalises the key prefix.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.KeyPrefix = strings.TrimSpace(c.KeyPrefix)
	c.CredentialKey = strings.TrimSpace(c.CredentialKey)
	if c.KeyPrefix != "" && !strings.HasSuffix(c.KeyPrefix, ":") {
		c.KeyPrefix += ":"
	}
}

// CacheConfig contains the API data cache configuration.
type CacheConfig struct {
	// TTL bounds how long a cached API response is served.
	TTL time.Duration `env:"CACHE_TTL" envDefault:"2m"`
}

// Sanitize clamps the TTL to a sane range.
func (c *CacheConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = 2 * time.Minute
	}
}
