package handler

import (
	"context"
	"time"

	"PSocial/module/chat/model"
	"PSocial/service/chat"
	"PSocial/tools/safe"
)

// MessageStore 文档库一侧
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	MarkSeen(ctx context.Context, chatID, readerID int64, at time.Time) (int64, error)
}

// ChatStore 关系库一侧
type ChatStore interface {
	CreateChat(ctx context.Context, memberIDs []int64) (int64, error)
	UpdateLastMessage(ctx context.Context, chatID int64, text string) error
}

type Handlers struct {
	msgs  MessageStore
	chats ChatStore
	now   func() time.Time
}

func New(msgs MessageStore, chats ChatStore) *Handlers {
	safe.MustNotNil(msgs, "message store")
	safe.MustNotNil(chats, "chat store")
	return &Handlers{msgs: msgs, chats: chats, now: time.Now}
}

// Register 把全部聊天事件挂到网关的分发器上
func (h *Handlers) Register(d *chat.Dispatcher) {
	d.Register(chat.EventNewMessage, chat.HandlerFunc(h.NewMessage))
	d.Register(chat.EventStartedTyping, chat.HandlerFunc(h.Typing))
	d.Register(chat.EventStoppedTyping, chat.HandlerFunc(h.Typing))
	d.Register(chat.EventMessageSeen, chat.HandlerFunc(h.MessageSeen))
	d.Register(chat.EventCallUser, relay(chat.EventIncomingCall, "offer"))
	d.Register(chat.EventAnswerCall, relay(chat.EventCallAccepted, "answer"))
	d.Register(chat.EventIceCandidate, relay(chat.EventIceCandidate, "candidate"))
	d.Register(chat.EventEndCall, relay(chat.EventCallEnded, ""))
}

// recipients 解析成员连接：跳过离线、跳过发送方自己的连接、去重
func recipients(em chat.Emitter, senderConn string, memberIDs []int64) []string {
	conns := em.Lookup(memberIDs...)
	out := make([]string, 0, len(conns))
	seen := make(map[string]struct{}, len(conns))
	for _, c := range conns {
		if c == "" || c == senderConn {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
