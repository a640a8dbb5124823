package chat

import (
	"sort"
	"sync"
)

// Registry 进程内在线表：userId -> 当前连接。
// 每个用户只有一个槽位，后连上的覆盖先前的。
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]string
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]string)}
}

func (r *Registry) Register(userID int64, connID string) {
	r.mu.Lock()
	r.byUser[userID] = connID
	r.mu.Unlock()
}

// Unregister 无条件删除
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	delete(r.byUser, userID)
	r.mu.Unlock()
}

// UnregisterConn 仅当槽位仍是 connID 时删除；已被新连接覆盖则保持不动
func (r *Registry) UnregisterConn(userID int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[userID]; ok && cur == connID {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// Lookup 与入参一一对应，不在线的位置是 ""
func (r *Registry) Lookup(userIDs ...int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(userIDs))
	for i, id := range userIDs {
		out[i] = r.byUser[id]
	}
	return out
}

// Online 升序的在线用户
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot 复制一份 userId -> connId，给 redis 镜像续期用
func (r *Registry) Snapshot() map[int64]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]string, len(r.byUser))
	for k, v := range r.byUser {
		out[k] = v
	}
	return out
}
