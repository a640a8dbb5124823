package chat

import (
	"sync"
	"time"

	"PSocial/logger"
	"PSocial/service/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn 一条 websocket：读协程在 Server.HandleWS 里，写协程是 writePump
type Conn struct {
	id     string
	userID int64
	ws     *websocket.Conn
	send   chan []byte
	conf   Conf

	closeOnce sync.Once
	done      chan struct{}
	writerOut chan struct{}
}

func newConn(id string, userID int64, ws *websocket.Conn, conf Conf) *Conn {
	return &Conn{
		id:        id,
		userID:    userID,
		ws:        ws,
		send:      make(chan []byte, conf.SendBuffer),
		conf:      conf,
		done:      make(chan struct{}),
		writerOut: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }
func (c *Conn) UserID() int64 { return c.userID }

// enqueue 非阻塞；缓冲满直接丢帧
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.SocketFrameDropped()
		logger.Warn("ws send buffer full, drop frame", zap.String("connId", c.id), zap.Int64("userId", c.userID))
		return false
	}
}

// close 通知写协程发 Close 帧并关闭底层连接
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
		close(c.writerOut)
	}()

	for {
		select {
		case <-c.done:
			// 尽量把已排队的帧写完
			for {
				select {
				case frame := <-c.send:
					if err := c.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				logger.Debug("ws write failed", zap.String("connId", c.id), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Debug("ws ping failed", zap.String("connId", c.id), zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (c *Conn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
