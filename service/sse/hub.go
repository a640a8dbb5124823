package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"PSocial/logger"
	"PSocial/service/metrics"
	"PSocial/tools/errs"

	"go.uber.org/zap"
)

// Client 一条打开的 text/event-stream 响应
type Client struct {
	userID  int64
	w       http.ResponseWriter
	flusher http.Flusher

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) UserID() int64 { return c.userID }

// Done 被新连接顶掉或被踢出时关闭
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.New("sse stream closed", "userId", c.userID)
	}
	if _, err := c.w.Write(frame); err != nil {
		return errs.WrapMsg(err, "sse write", "userId", c.userID)
	}
	c.flusher.Flush()
	return nil
}

// Close 之后不会再有任何写入，handler 可以安全返回
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub userId -> 当前打开的流，每个用户只保留一条
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*Client)}
}

// Register 写完握手帧再登记；旧流被关闭
func (h *Hub) Register(userID int64, w http.ResponseWriter) (*Client, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, errs.New("response writer does not support flushing")
	}
	c := &Client{userID: userID, w: w, flusher: fl, done: make(chan struct{})}

	hello, _ := json.Marshal(map[string]any{"type": "connected", "userId": userID})
	if err := c.write(dataFrame(hello)); err != nil {
		return nil, err
	}

	h.mu.Lock()
	prior := h.clients[userID]
	h.clients[userID] = c
	h.mu.Unlock()

	if prior != nil {
		prior.Close()
		logger.Debug("sse stream replaced", zap.Int64("userId", userID))
	}
	metrics.SSEOpened()
	return c, nil
}

// Remove 只删除仍指向 c 的条目，被替换的旧流清理时不会误删新流
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	removed := false
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
		removed = true
	}
	h.mu.Unlock()
	c.Close()
	return removed
}

// Send 推一帧 data: <json>；没有流返回 false，写失败会把该流踢掉
func (h *Hub) Send(userID int64, payload any) bool {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		metrics.SSEFrame("no_stream")
		return false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("sse marshal payload", zap.Int64("userId", userID), zap.Error(err))
		metrics.SSEFrame("error")
		return false
	}
	if err := c.write(dataFrame(raw)); err != nil {
		logger.Warn("sse send failed, evicting", zap.Int64("userId", userID), zap.Error(err))
		h.Remove(c)
		metrics.SSEFrame("error")
		return false
	}
	metrics.SSEFrame("sent")
	return true
}

func (h *Hub) Connected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 停机时让所有 handler 退出
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[int64]*Client)
	h.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}

func dataFrame(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+8)
	out = append(out, "data: "...)
	out = append(out, raw...)
	return append(out, '\n', '\n')
}
