package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"PSocial/logger"
	midsec "PSocial/middleware/security"
	"PSocial/service/metrics"
	"PSocial/tools/ids"
	"PSocial/tools/resp"
	"PSocial/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Conf struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	PongWait       time.Duration
	ReadLimit      int64
	SendBuffer     int
	HandlerTimeout time.Duration
	AllowedOrigins []string // 为空时不校验 Origin
}

func (c *Conf) norm() {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 10 * time.Second
	}
}

// PresenceMirror 跨节点可见的在线镜像（redis），失败只记日志
type PresenceMirror interface {
	Online(ctx context.Context, userID int64, connID string) error
	Offline(ctx context.Context, userID int64, connID string) (bool, error)
}

type Server struct {
	conf     Conf
	auth     *midsec.Options
	upgrader websocket.Upgrader
	reg      *Registry
	disp     *Dispatcher
	mirror   PresenceMirror

	mu    sync.RWMutex
	conns map[string]*Conn

	closing atomic.Bool
	wg      sync.WaitGroup
}

func NewServer(conf Conf, auth *midsec.Options, disp *Dispatcher) *Server {
	conf.norm()
	if auth == nil {
		auth = midsec.DefaultOptions()
	}
	if auth.QueryParam == "" {
		auth.QueryParam = "token"
	}
	s := &Server{
		conf:  conf,
		auth:  auth,
		reg:   NewRegistry(),
		disp:  disp,
		conns: make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) SetMirror(m PresenceMirror) { s.mirror = m }

func (s *Server) Registry() *Registry { return s.reg }

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.conf.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.conf.AllowedOrigins {
		if strings.TrimRight(o, "/") == origin {
			return true
		}
	}
	return false
}

// HandleWS GET /ws?token=<jwt>
func (s *Server) HandleWS(c *gin.Context) {
	if s.closing.Load() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	claims, err := midsec.Authenticate(c.Request, s.auth)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 websocket 请求 / 握手失败，upgrader 已经写了响应
		logger.Info("ws upgrade failed", zap.Error(err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn := newConn(ids.ConnID(), claims.UserID, ws, s.conf)
	s.attach(conn)
	go conn.writePump()

	s.readLoop(conn)

	s.detach(conn)
	conn.close()
	<-conn.writerOut
}

func (s *Server) attach(conn *Conn) {
	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()
	s.reg.Register(conn.userID, conn.id)
	metrics.WSConnected()
	logger.Info("user connected", zap.Int64("userId", conn.userID), zap.String("connId", conn.id))

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.mirror.Online(ctx, conn.userID, conn.id); err != nil {
			logger.Warn("presence mirror online failed", zap.Int64("userId", conn.userID), zap.Error(err))
		}
		cancel()
	}
	s.Broadcast(EventJoined, s.reg.Online())
}

func (s *Server) detach(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn.id)
	s.mu.Unlock()
	removed := s.reg.UnregisterConn(conn.userID, conn.id)
	metrics.WSDisconnected()
	logger.Info("user disconnected", zap.Int64("userId", conn.userID), zap.String("connId", conn.id),
		zap.Bool("superseded", !removed))

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := s.mirror.Offline(ctx, conn.userID, conn.id); err != nil {
			logger.Warn("presence mirror offline failed", zap.Int64("userId", conn.userID), zap.Error(err))
		}
		cancel()
	}
	// 被新连接顶掉的旧连接关闭时，用户仍在线，不广播
	if removed && !s.closing.Load() {
		s.Broadcast(EventExited, s.reg.Online())
	}
}

// readLoop 同一连接的事件严格按到达顺序处理
func (s *Server) readLoop(conn *Conn) {
	ws := conn.ws
	ws.SetReadLimit(s.conf.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				logger.Debug("ws peer closed", zap.String("connId", conn.id))
			case errors.As(err, &ne) && ne.Timeout():
				logger.Debug("ws read timeout", zap.String("connId", conn.id))
			default:
				logger.Debug("ws read error", zap.String("connId", conn.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))

		env, err := ParseEnvelope(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warn("ws bad frame", zap.String("connId", conn.id), zap.ByteString("sample", sample), zap.Error(err))
			continue
		}
		metrics.SocketEventIn(env.Event)
		s.handle(conn, env)
	}
}

func (s *Server) handle(conn *Conn, env *Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.HandlerTimeout)
	defer cancel()
	req := &Request{UserID: conn.userID, ConnID: conn.id, Event: env.Event, Data: env.Data}
	err := safe.Run(func() error { return s.disp.Dispatch(ctx, s, req) })
	if err != nil {
		logger.Warn("ws event dropped", zap.String("event", env.Event), zap.Int64("userId", conn.userID), zap.Error(err))
	}
}

// Lookup 实现 Emitter
func (s *Server) Lookup(userIDs ...int64) []string { return s.reg.Lookup(userIDs...) }

// Emit 按连接 id 投递；连接已不存在时静默返回 false
func (s *Server) Emit(connID, event string, data any) bool {
	if connID == "" {
		return false
	}
	s.mu.RLock()
	conn := s.conns[connID]
	s.mu.RUnlock()
	if conn == nil {
		return false
	}
	frame, err := EncodeFrame(event, data)
	if err != nil {
		logger.Error("ws encode frame", zap.String("event", event), zap.Error(err))
		return false
	}
	if !conn.enqueue(frame) {
		return false
	}
	metrics.SocketEventOut(event)
	return true
}

// Broadcast 发给本节点所有连接
func (s *Server) Broadcast(event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		logger.Error("ws encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	s.mu.RLock()
	all := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		all = append(all, c)
	}
	s.mu.RUnlock()
	for _, c := range all {
		if c.enqueue(frame) {
			metrics.SocketEventOut(event)
		}
	}
}

func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close 拒绝新连接，关闭现有连接并等读协程退出
func (s *Server) Close(ctx context.Context) {
	s.closing.Store(true)
	s.mu.RLock()
	for _, c := range s.conns {
		c.close()
		// 读协程阻塞在 ReadMessage，关闭底层连接让它返回
		_ = c.ws.SetReadDeadline(time.Now())
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("ws gateway close timed out", zap.Int("conns", s.ConnCount()))
	}
}
