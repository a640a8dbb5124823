package natsx

import (
	"sync"
	"time"
)

// IdemStore 消费端去重：只记录已经落定（完成/重投/转 failed）的消息，
// 落定后 Ack 丢失导致的重投直接跳过；未落定的重投照常处理
type IdemStore interface {
	Done(key string) bool
	MarkDone(key string, ttl time.Duration)
}

// MemIdem 单进程内存实现
type MemIdem struct {
	mu  sync.Mutex
	m   map[string]int64 // key -> expireUnixMilli
	ttl time.Duration
	now func() time.Time
}

func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	return &MemIdem{m: make(map[string]int64), ttl: defaultTTL, now: time.Now}
}

func (mi *MemIdem) Done(key string) bool {
	now := mi.now().UnixMilli()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	exp, ok := mi.m[key]
	return ok && exp > now
}

func (mi *MemIdem) MarkDone(key string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	exp := mi.now().Add(ttl).UnixMilli()
	mi.mu.Lock()
	mi.m[key] = exp
	mi.mu.Unlock()
}

// Sweep 清理过期 key，由调用方定时触发
func (mi *MemIdem) Sweep() int {
	now := mi.now().UnixMilli()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	n := 0
	for k, exp := range mi.m {
		if exp <= now {
			delete(mi.m, k)
			n++
		}
	}
	return n
}

// msgIDFromHeader 标准头 Nats-Msg-Id，兼容业务自定义 X-Msg-Id
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{"Nats-Msg-Id", "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
