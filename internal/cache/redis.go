package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

const credentialHashKey = "credentials"

// RedisClient handles Redis caching operations. It doubles as the durable
// backend for the credential store and the dashboard session store.
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// SetJSON stores a JSON-encoded value with a TTL
func (rc *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}

	return rc.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves a JSON-encoded value into dest
func (rc *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

// Delete removes a key
func (rc *RedisClient) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// Credential persistence (credentials.Backend)

// LoadCredentials loads all vendor credentials from the credential hash
func (rc *RedisClient) LoadCredentials(ctx context.Context) (map[models.Vendor]models.Credential, error) {
	entries, err := rc.client.HGetAll(ctx, credentialHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load credential hash: %w", err)
	}

	creds := make(map[models.Vendor]models.Credential, len(entries))
	for field, raw := range entries {
		var cred models.Credential
		if err := json.Unmarshal([]byte(raw), &cred); err != nil {
			rc.logger.WithError(err).WithField("vendor", field).Warn("Skipping malformed stored credential")
			continue
		}
		creds[models.Vendor(field)] = cred
	}

	return creds, nil
}

// SaveCredential persists one vendor credential
func (rc *RedisClient) SaveCredential(ctx context.Context, vendor models.Vendor, cred models.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	return rc.client.HSet(ctx, credentialHashKey, string(vendor), data).Err()
}

// DeleteCredential removes one vendor credential
func (rc *RedisClient) DeleteCredential(ctx context.Context, vendor models.Vendor) error {
	return rc.client.HDel(ctx, credentialHashKey, string(vendor)).Err()
}
