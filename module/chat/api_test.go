package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PSocial/middleware"
	midsec "PSocial/middleware/security"
	"PSocial/module/chat/model"
	usermodel "PSocial/module/user/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs  []*model.Message
	total int64
	err   error

	gotPage, gotLimit int64
}

func (f *fakeReader) ListByChat(_ context.Context, _ int64, page, limit int64) ([]*model.Message, error) {
	f.gotPage, f.gotLimit = page, limit
	return f.msgs, f.err
}

func (f *fakeReader) CountByChat(context.Context, int64) (int64, error) { return f.total, nil }

type fakeProfiles map[int64]*usermodel.Profile

func (f fakeProfiles) GetMany(_ context.Context, ids []int64) (map[int64]*usermodel.Profile, error) {
	out := map[int64]*usermodel.Profile{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeOnline []int64

func (f fakeOnline) List(context.Context) ([]int64, error) { return f, nil }

type body struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]int  `json:"meta"`
	Code    int             `json:"code"`
}

func newRouter(a *API) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetAuth(func(c *gin.Context) {
		c.Set(midsec.CtxUserIDKey, int64(1))
		c.Next()
	})
	r := gin.New()
	a.Routes(r)
	return r
}

func get(r http.Handler, url string) (*httptest.ResponseRecorder, body) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	var b body
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	return w, b
}

func TestGetMessagesRequiresChatID(t *testing.T) {
	r := newRouter(NewAPI(&fakeReader{}, fakeProfiles{}, fakeOnline{}))
	w, b := get(r, "/api/chat/get-messages")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, b.Success)
	assert.Equal(t, "chatId is required", b.Message)

	w, _ = get(r, "/api/chat/get-messages?chatId=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMessagesPage(t *testing.T) {
	reader := &fakeReader{
		msgs: []*model.Message{
			{ChatID: 3, SenderID: 1, Message: "a"},
			{ChatID: 3, SenderID: 2, Message: "b"},
		},
		total: 23,
	}
	r := newRouter(NewAPI(reader, fakeProfiles{1: {ID: 1, Username: "alice"}}, fakeOnline{}))

	w, b := get(r, "/api/chat/get-messages?chatId=3&page=2&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, b.Success)
	assert.Equal(t, "Messages for chatId 3 fetched successfully", b.Message)
	assert.EqualValues(t, 2, reader.gotPage)
	assert.EqualValues(t, 10, reader.gotLimit)
	assert.Equal(t, map[string]int{"currentPage": 2, "totalPages": 3, "totalMessages": 23}, b.Meta)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(b.Data, &views))
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0]["message"])
	assert.Equal(t, "alice", views[0]["sender"].(map[string]any)["username"])
	assert.Nil(t, views[1]["sender"])
}

func TestGetMessagesDefaultsAndEmpty(t *testing.T) {
	reader := &fakeReader{}
	r := newRouter(NewAPI(reader, fakeProfiles{}, fakeOnline{}))

	w, b := get(r, "/api/chat/get-messages?chatId=9&page=0&limit=x")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, reader.gotPage)
	assert.EqualValues(t, 10, reader.gotLimit)
	assert.Equal(t, "No messages found for chatId 9", b.Message)
	assert.JSONEq(t, `[]`, string(b.Data))
	assert.Nil(t, b.Meta)
}

func TestGetMessagesLimitCapped(t *testing.T) {
	reader := &fakeReader{}
	r := newRouter(NewAPI(reader, fakeProfiles{}, fakeOnline{}))

	w, _ := get(r, "/api/chat/get-messages?chatId=9&limit=100000000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 100, reader.gotLimit)

	_, _ = get(r, "/api/chat/get-messages?chatId=9&limit=40")
	assert.EqualValues(t, 40, reader.gotLimit)
}

func TestGetMessagesStoreError(t *testing.T) {
	r := newRouter(NewAPI(&fakeReader{err: errors.New("mongo down")}, fakeProfiles{}, fakeOnline{}))
	w, b := get(r, "/api/chat/get-messages?chatId=9")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", b.Message)
}

func TestOnline(t *testing.T) {
	r := newRouter(NewAPI(&fakeReader{}, fakeProfiles{}, fakeOnline{2, 5}))
	w, b := get(r, "/api/chat/online")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[2,5]`, string(b.Data))
}
