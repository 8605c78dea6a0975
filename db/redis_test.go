package db_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/habedi/rebaton/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCredentialRepository_RoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := db.NewRedisCredentialRepository(rdb, "rebaton:")
	ctx := context.Background()

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	require.NoError(t, repo.Save(ctx, &db.Credentials{AccessToken: "a", RefreshToken: "r"}))
	got, err := mr.Get("rebaton:access_token")
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	creds, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "a", creds.AccessToken)
	assert.Equal(t, "r", creds.RefreshToken)

	require.NoError(t, repo.Clear(ctx))
	assert.False(t, mr.Exists("rebaton:access_token"))
	assert.False(t, mr.Exists("rebaton:refresh_token"))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := db.NewRedisClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
