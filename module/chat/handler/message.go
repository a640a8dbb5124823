package handler

import (
	"context"
	"strings"

	"PSocial/logger"
	"PSocial/module/chat/model"
	"PSocial/service/chat"
	"PSocial/tools/decode"
	"PSocial/tools/errs"

	"go.uber.org/zap"
)

type newMessageReq struct {
	ChatID     *int64   `json:"chatId"`
	MemberIDs  []int64  `json:"memberIds"`
	Message    string   `json:"message"`
	Attachment []string `json:"attachment"`
	TempID     string   `json:"tempId"`
}

type failMessage struct {
	TempID string `json:"tempId"`
	ChatID *int64 `json:"chatId"`
	Error  string `json:"error"`
}

type mapMessage struct {
	TempID  string         `json:"tempId"`
	ChatID  int64          `json:"chatId"`
	Message *model.Message `json:"message"`
}

type newMessage struct {
	ChatID  int64          `json:"chatId"`
	Message *model.Message `json:"message"`
}

type messageAlert struct {
	ChatID   int64 `json:"chatId"`
	SenderID int64 `json:"senderId"`
}

// NewMessage 建会话(可选) -> 写文档 -> 更新最后一条 -> 回执 -> 扇出
func (h *Handlers) NewMessage(ctx context.Context, em chat.Emitter, req *chat.Request) error {
	in, err := decode.DecodeJSON[newMessageReq](req.Data)
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	if len(in.MemberIDs) == 0 {
		return errs.ErrArgs.WrapMsg("memberIds is required")
	}
	if strings.TrimSpace(in.Message) == "" && len(in.Attachment) == 0 {
		return errs.ErrArgs.WrapMsg("empty message")
	}

	var chatID int64
	if in.ChatID != nil && *in.ChatID > 0 {
		chatID = *in.ChatID
	} else {
		chatID, err = h.chats.CreateChat(ctx, in.MemberIDs)
		if err != nil {
			logger.Error("create chat failed", zap.Int64("userId", req.UserID), zap.Error(err))
			em.Emit(req.ConnID, chat.EventFailMessage, failMessage{TempID: in.TempID, Error: "Failed to create chat"})
			return nil
		}
	}

	msg := &model.Message{
		ChatID:     chatID,
		SenderID:   req.UserID,
		Message:    in.Message,
		Attachment: in.Attachment,
	}
	if err := h.msgs.Insert(ctx, msg); err != nil {
		logger.Error("insert message failed", zap.Int64("chatId", chatID), zap.Int64("userId", req.UserID), zap.Error(err))
		em.Emit(req.ConnID, chat.EventFailMessage, failMessage{TempID: in.TempID, ChatID: &chatID, Error: "Failed to send message"})
		return nil
	}

	// 两个库之间没有事务，最后一条消息写失败不影响投递
	if err := h.chats.UpdateLastMessage(ctx, chatID, lastMessageText(msg)); err != nil {
		logger.Warn("update last message failed", zap.Int64("chatId", chatID), zap.Error(err))
	}

	em.Emit(req.ConnID, chat.EventMapMessage, mapMessage{TempID: in.TempID, ChatID: chatID, Message: msg})

	for _, conn := range recipients(em, req.ConnID, in.MemberIDs) {
		em.Emit(conn, chat.EventNewMessage, newMessage{ChatID: chatID, Message: msg})
		em.Emit(conn, chat.EventNewMessageAlert, messageAlert{ChatID: chatID, SenderID: req.UserID})
	}
	return nil
}

func lastMessageText(m *model.Message) string {
	if m.Message != "" {
		return m.Message
	}
	return "Attachment"
}
