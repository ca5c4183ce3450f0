package tokenstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/effective-security/opsdash/pkg/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
	"golang.org/x/oauth2"
)

func TestRedisStore(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7")
	testcontainers.CleanupContainer(t, redisContainer)
	require.NoError(t, err)

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err(), "failed to connect to Redis")

	root := fmt.Sprintf("test-%d", time.Now().Unix())
	st := tokenstore.NewRedisStore(client, root, "google")

	_, err = st.Load(ctx)
	assert.True(t, tokenstore.IsNotFound(err))

	expiry := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, st.Save(ctx, &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}))

	keys, err := client.Keys(ctx, "/"+root+"/*").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"/" + root + "/oauth/google"}, keys)

	tok, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))

	require.NoError(t, st.Clear(ctx))
	_, err = st.Load(ctx)
	assert.True(t, tokenstore.IsNotFound(err))
}
