package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	rdx "PSocial/service/storage/redis"
	"PSocial/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// OnlineMirror 把本节点的在线用户镜像到 redis，供其它节点 / HTTP 查询。
// 投递路由仍然只看进程内的 Presence Registry，这里只是旁路可见性。
//
// key 布局：
//   <prefix>:online             ZSET  member=userId score=最近心跳 unix
//   <prefix>:presence:<userId>  STRING "<node>|<connId>"，带 TTL
type OnlineMirror struct {
	rdb    *redis.Client
	prefix string
	node   string
	ttl    time.Duration
	now    func() time.Time

	luaOffline *redis.Script
}

// 只有 presence 仍指向这条连接时才下线，避免旧连接关闭把新连接挤掉
// KEYS[1] = presence key
// KEYS[2] = online zset
// ARGV[1] = 期望的 value
// ARGV[2] = userId
// 返回 1 已下线；0 已被其它连接接管
const luaOfflineIfOwner = `
local cur = redis.call("GET", KEYS[1])
if cur and cur ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[2])
return 1
`

func NewOnlineMirror(rdb *redis.Client, prefix, node string, ttl time.Duration) *OnlineMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &OnlineMirror{
		rdb:        rdb,
		prefix:     prefix,
		node:       node,
		ttl:        ttl,
		now:        time.Now,
		luaOffline: redis.NewScript(luaOfflineIfOwner),
	}
}

func (m *OnlineMirror) onlineKey() string { return rdx.JoinKey(m.prefix, "online") }

func (m *OnlineMirror) presenceKey(userID int64) string {
	return rdx.JoinKey(m.prefix, "presence", strconv.FormatInt(userID, 10))
}

func (m *OnlineMirror) value(connID string) string { return m.node + "|" + connID }

// Online 标记上线并续期
func (m *OnlineMirror) Online(ctx context.Context, userID int64, connID string) error {
	now := m.now()
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, m.presenceKey(userID), m.value(connID), m.ttl)
	pipe.ZAdd(ctx, m.onlineKey(), redis.Z{Score: float64(now.Unix()), Member: strconv.FormatInt(userID, 10)})
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "presence online", "user", userID)
	}
	return nil
}

// Offline 下线；返回 false 表示该用户已经被别的连接接管
func (m *OnlineMirror) Offline(ctx context.Context, userID int64, connID string) (bool, error) {
	n, err := m.luaOffline.Run(ctx, m.rdb,
		[]string{m.presenceKey(userID), m.onlineKey()},
		m.value(connID), strconv.FormatInt(userID, 10),
	).Int()
	if err != nil {
		return false, errs.WrapMsg(err, "presence offline", "user", userID)
	}
	return n == 1, nil
}

// Refresh 批量续期（定时任务调用）
func (m *OnlineMirror) Refresh(ctx context.Context, entries map[int64]string) error {
	if len(entries) == 0 {
		return nil
	}
	now := float64(m.now().Unix())
	pipe := m.rdb.Pipeline()
	for uid, connID := range entries {
		pipe.Set(ctx, m.presenceKey(uid), m.value(connID), m.ttl)
		pipe.ZAdd(ctx, m.onlineKey(), redis.Z{Score: now, Member: strconv.FormatInt(uid, 10)})
	}
	_, err := pipe.Exec(ctx)
	return errs.Wrap(err)
}

// List 返回 TTL 窗口内仍有心跳的用户，并顺手清理过期成员
func (m *OnlineMirror) List(ctx context.Context) ([]int64, error) {
	cutoff := m.now().Add(-m.ttl).Unix()
	if err := m.rdb.ZRemRangeByScore(ctx, m.onlineKey(), "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, errs.WrapMsg(err, "presence sweep")
	}
	members, err := m.rdb.ZRange(ctx, m.onlineKey(), 0, -1).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence list")
	}
	out := make([]int64, 0, len(members))
	for _, s := range members {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Lookup 查询用户在哪个节点的哪条连接上
func (m *OnlineMirror) Lookup(ctx context.Context, userID int64) (node, connID string, online bool, err error) {
	val, err := m.rdb.Get(ctx, m.presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, errs.WrapMsg(err, "presence lookup", "user", userID)
	}
	node, connID, ok := strings.Cut(val, "|")
	if !ok {
		return "", "", false, fmt.Errorf("malformed presence value %q", val)
	}
	return node, connID, true, nil
}
