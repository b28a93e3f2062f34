package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashClient держит хеши в памяти; остальные команды не реализованы.
type hashClient struct {
	redis.Cmdable
	hashes map[string]map[string]string
	err    error
}

func newHashClient() *hashClient {
	return &hashClient{hashes: make(map[string]map[string]string)}
}

func (c *hashClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if c.err != nil {
		return redis.NewMapStringStringResult(nil, c.err)
	}
	out := make(map[string]string, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (c *hashClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if c.err != nil {
		return redis.NewIntResult(0, c.err)
	}
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	var added int64
	for i := 0; i+1 < len(values); i += 2 {
		name := fmt.Sprint(values[i])
		if _, ok := h[name]; !ok {
			added++
		}
		h[name] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(added, nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newHashClient()
	store := newRedisStore(client, "lfpump:processed")

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Save(nil))
	assert.Empty(t, client.hashes)

	want := map[string]int64{"/var/log/a.log": 120, "/var/log/b.log": 0}
	require.NoError(t, store.Save(want))
	assert.Equal(t, "120", client.hashes["lfpump:processed"]["/var/log/a.log"])

	require.NoError(t, store.Save(map[string]int64{"/var/log/a.log": 200}))
	got, err := newRedisStore(client, "lfpump:processed").Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"/var/log/a.log": 200, "/var/log/b.log": 0}, got)
}

func TestRedisStoreRejectsBadOffset(t *testing.T) {
	client := newHashClient()
	client.hashes["k"] = map[string]string{"/var/log/a.log": "abc"}

	_, err := newRedisStore(client, "k").Load()
	assert.ErrorContains(t, err, "offset of /var/log/a.log")
}

func TestRedisStoreWrapsClientErrors(t *testing.T) {
	client := newHashClient()
	client.err = errors.New("connection refused")
	store := newRedisStore(client, "k")

	_, err := store.Load()
	assert.ErrorIs(t, err, client.err)
	assert.ErrorContains(t, err, "hgetall k")

	err = store.Save(map[string]int64{"/var/log/a.log": 1})
	assert.ErrorIs(t, err, client.err)
	assert.ErrorContains(t, err, "hset k")
}
