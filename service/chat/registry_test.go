package chat

import (
	"context"
	"encoding/json"
	"testing"

	"PSocial/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySingleSlot(t *testing.T) {
	r := NewRegistry()
	r.Register(7, "c1")
	r.Register(3, "c2")
	r.Register(7, "c3")

	assert.Equal(t, []int64{3, 7}, r.Online())
	assert.Equal(t, []string{"c3", "", "c2"}, r.Lookup(7, 99, 3))

	// 旧连接断开不能把新连接的槽位删掉
	assert.False(t, r.UnregisterConn(7, "c1"))
	assert.Equal(t, []string{"c3"}, r.Lookup(7))
	assert.True(t, r.UnregisterConn(7, "c3"))
	assert.Equal(t, []int64{3}, r.Online())

	snap := r.Snapshot()
	snap[3] = "mutated"
	assert.Equal(t, []string{"c2"}, r.Lookup(3))

	r.Unregister(3)
	assert.Empty(t, r.Online())
}

type recordEmitter struct {
	sent []string
}

func (e *recordEmitter) Lookup(userIDs ...int64) []string { return make([]string, len(userIDs)) }

func (e *recordEmitter) Emit(connID, event string, _ any) bool {
	e.sent = append(e.sent, connID+":"+event)
	return true
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()
	d.Register(EventStartedTyping, HandlerFunc(func(ctx context.Context, em Emitter, req *Request) error {
		em.Emit("peer", EventStartedTyping, nil)
		return nil
	}))
	d.Register(EventEndCall, HandlerFunc(func(context.Context, Emitter, *Request) error { return nil }))
	assert.Equal(t, []string{EventEndCall, EventStartedTyping}, d.Events())

	em := &recordEmitter{}
	require.NoError(t, d.Dispatch(context.Background(), em, &Request{UserID: 1, Event: EventStartedTyping}))
	assert.Equal(t, []string{"peer:" + EventStartedTyping}, em.sent)

	err := d.Dispatch(context.Background(), em, &Request{UserID: 1, Event: "NOPE"})
	assert.ErrorIs(t, err, errs.ErrArgs)
}

func TestEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"event":"NEW_MESSAGE","data":{"chatId":5}}`))
	require.NoError(t, err)
	assert.Equal(t, EventNewMessage, env.Event)
	assert.JSONEq(t, `{"chatId":5}`, string(env.Data))

	_, err = ParseEnvelope([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, errs.ErrArgs)
	_, err = ParseEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, errs.ErrArgs)

	raw, err := EncodeFrame(EventJoined, []int64{1, 2})
	require.NoError(t, err)
	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, EventJoined, back.Event)
	assert.JSONEq(t, `[1,2]`, string(back.Data))
}
