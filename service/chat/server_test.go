package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	midsec "PSocial/middleware/security"
	jwtx "PSocial/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventPoke = "POKE"

type pokeReq struct {
	To int64 `json:"to"`
}

func newTestGateway(t *testing.T) (*Server, *httptest.Server, *midsec.Options) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := &midsec.Options{
		JWT:        jwtx.Options{Secret: []byte("ws-secret"), Alg: "HS256", TTL: time.Hour},
		QueryParam: "token",
	}
	disp := NewDispatcher()
	disp.Register(eventPoke, HandlerFunc(func(ctx context.Context, em Emitter, req *Request) error {
		var p pokeReq
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return err
		}
		em.Emit(em.Lookup(p.To)[0], eventPoke, map[string]int64{"from": req.UserID})
		return nil
	}))

	s := NewServer(Conf{}, auth, disp)
	r := gin.New()
	r.GET("/ws", s.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Close(ctx)
		srv.Close()
	})
	return s, srv, auth
}

func dial(t *testing.T, srv *httptest.Server, auth *midsec.Options, userID int64) *websocket.Conn {
	t.Helper()
	token, _, err := jwtx.Generate(auth.JWT, userID, "u@x.io")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func onlineOf(t *testing.T, env Envelope) []int64 {
	t.Helper()
	var ids []int64
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	return ids
}

func TestGatewayPresenceAndEmit(t *testing.T) {
	s, srv, auth := newTestGateway(t)

	a := dial(t, srv, auth, 1)
	env := readFrame(t, a)
	assert.Equal(t, EventJoined, env.Event)
	assert.Equal(t, []int64{1}, onlineOf(t, env))

	b := dial(t, srv, auth, 2)
	env = readFrame(t, a)
	assert.Equal(t, EventJoined, env.Event)
	assert.Equal(t, []int64{1, 2}, onlineOf(t, env))
	env = readFrame(t, b)
	assert.Equal(t, []int64{1, 2}, onlineOf(t, env))

	require.NoError(t, a.WriteJSON(map[string]any{"event": eventPoke, "data": pokeReq{To: 2}}))
	env = readFrame(t, b)
	assert.Equal(t, eventPoke, env.Event)
	assert.JSONEq(t, `{"from":1}`, string(env.Data))

	// 坏帧被丢弃，连接不受影响
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, a.WriteJSON(map[string]any{"event": "UNKNOWN"}))
	require.NoError(t, a.WriteJSON(map[string]any{"event": eventPoke, "data": pokeReq{To: 2}}))
	env = readFrame(t, b)
	assert.Equal(t, eventPoke, env.Event)

	require.NoError(t, b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	env = readFrame(t, a)
	assert.Equal(t, EventExited, env.Event)
	assert.Equal(t, []int64{1}, onlineOf(t, env))
	require.Eventually(t, func() bool { return s.ConnCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestGatewaySupersededConnection(t *testing.T) {
	s, srv, auth := newTestGateway(t)

	old := dial(t, srv, auth, 5)
	readFrame(t, old)
	oldConn := s.Lookup(5)[0]

	fresh := dial(t, srv, auth, 5)
	env := readFrame(t, fresh)
	assert.Equal(t, []int64{5}, onlineOf(t, env))
	freshConn := s.Lookup(5)[0]
	require.NotEqual(t, oldConn, freshConn)

	watcher := dial(t, srv, auth, 9)
	readFrame(t, watcher)
	readFrame(t, fresh)

	require.NoError(t, old.Close())
	require.Eventually(t, func() bool { return s.ConnCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{freshConn}, s.Lookup(5))
	assert.Equal(t, []int64{5, 9}, s.Registry().Online())
	assert.False(t, s.Emit(oldConn, eventPoke, nil))

	// 旧连接关闭不广播 EXITED：watcher 下一帧应是 fresh 断开后的 EXITED [9]
	require.NoError(t, fresh.Close())
	env = readFrame(t, watcher)
	assert.Equal(t, EventExited, env.Event)
	assert.Equal(t, []int64{9}, onlineOf(t, env))
}

func TestGatewayRejectsWithoutToken(t *testing.T) {
	s, srv, _ := newTestGateway(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	_, res, err = websocket.DefaultDialer.Dial(url+"?token=broken", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Zero(t, s.ConnCount())
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(Conf{AllowedOrigins: []string{"https://app.example.com/"}}, &midsec.Options{}, NewDispatcher())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(req))
}
