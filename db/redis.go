package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisCredentialRepo stores the credential pair in Redis so several processes
// can share one session.
type redisCredentialRepo struct {
	client *redis.Client
	prefix string
}

// NewRedisCredentialRepository creates a CredentialRepository backed by Redis.
// Keys are prefix + "access_token" and prefix + "refresh_token".
func NewRedisCredentialRepository(client *redis.Client, prefix string) CredentialRepository {
	return &redisCredentialRepo{client: client, prefix: prefix}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, database int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *redisCredentialRepo) accessKey() string  { return r.prefix + AccessTokenKey }
func (r *redisCredentialRepo) refreshKey() string { return r.prefix + RefreshTokenKey }

func (r *redisCredentialRepo) Load(ctx context.Context) (*Credentials, error) {
	if r.client == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	values, err := r.client.MGet(ctx, r.accessKey(), r.refreshKey()).Result()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load credentials from redis")
		return nil, err
	}
	if len(values) != 2 || (values[0] == nil && values[1] == nil) {
		return nil, nil
	}
	creds := &Credentials{}
	if s, ok := values[0].(string); ok {
		creds.AccessToken = s
	}
	if s, ok := values[1].(string); ok {
		creds.RefreshToken = s
	}
	return creds, nil
}

// Save replaces both keys inside one MULTI/EXEC block.
func (r *redisCredentialRepo) Save(ctx context.Context, creds *Credentials) error {
	if r.client == nil {
		return fmt.Errorf("repository not initialized")
	}
	if creds == nil {
		return errors.New("credentials cannot be nil")
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey(), creds.AccessToken, 0)
		pipe.Set(ctx, r.refreshKey(), creds.RefreshToken, 0)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to save credentials to redis")
		return err
	}
	return nil
}

func (r *redisCredentialRepo) Clear(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("repository not initialized")
	}
	if err := r.client.Del(ctx, r.accessKey(), r.refreshKey()).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials in redis")
		return err
	}
	return nil
}
