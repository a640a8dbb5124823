package handler

import (
	"context"
	"time"

	"PSocial/logger"
	"PSocial/service/chat"
	"PSocial/tools/decode"
	"PSocial/tools/errs"

	"go.uber.org/zap"
)

type membersReq struct {
	ChatID    int64   `json:"chatId"`
	MemberIDs []int64 `json:"memberIds"`
}

type typingEvent struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

type seenEvent struct {
	ChatID int64     `json:"chatId"`
	UserID int64     `json:"userId"`
	SeenAt time.Time `json:"seenAt"`
}

func decodeMembers(req *chat.Request) (*membersReq, error) {
	in, err := decode.DecodeJSON[membersReq](req.Data)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	if in.ChatID <= 0 || len(in.MemberIDs) == 0 {
		return nil, errs.ErrArgs.WrapMsg("chatId and memberIds are required")
	}
	return in, nil
}

// Typing STARTED_TYPING / STOPPED_TYPING 原样转给会话其他成员
func (h *Handlers) Typing(_ context.Context, em chat.Emitter, req *chat.Request) error {
	in, err := decodeMembers(req)
	if err != nil {
		return err
	}
	for _, conn := range recipients(em, req.ConnID, in.MemberIDs) {
		em.Emit(conn, req.Event, typingEvent{ChatID: in.ChatID, UserID: req.UserID})
	}
	return nil
}

// MessageSeen 落库失败只记日志，已读事件照常发
func (h *Handlers) MessageSeen(ctx context.Context, em chat.Emitter, req *chat.Request) error {
	in, err := decodeMembers(req)
	if err != nil {
		return err
	}
	at := h.now()
	if n, err := h.msgs.MarkSeen(ctx, in.ChatID, req.UserID, at); err != nil {
		logger.Warn("mark seen failed", zap.Int64("chatId", in.ChatID), zap.Int64("userId", req.UserID), zap.Error(err))
	} else {
		logger.Debug("messages seen", zap.Int64("chatId", in.ChatID), zap.Int64("count", n))
	}
	for _, conn := range recipients(em, req.ConnID, in.MemberIDs) {
		em.Emit(conn, chat.EventMessageSeen, seenEvent{ChatID: in.ChatID, UserID: req.UserID, SeenAt: at})
	}
	return nil
}
