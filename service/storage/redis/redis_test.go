package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "psocial:queue:wait", JoinKey("psocial", "queue", "wait"))
	assert.Equal(t, "queue:wait", JoinKey("", "queue", "wait"))
}

func TestInitRedisSingleton(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, InitRedis(Config{Addr: mr.Addr(), Prefix: "ps"}))
	// 第二次调用不会重建
	require.NoError(t, InitRedis(Config{Addr: "127.0.0.1:1"}))

	assert.NotNil(t, GetRedis())
	assert.Equal(t, "ps:online", Key("online"))
	require.NoError(t, CloseRedis())
}
