package handler

import (
	"context"

	"PSocial/service/chat"
	"PSocial/tools/decode"
	"PSocial/tools/errs"
)

// 信令只转发，不维护通话状态
type callReq struct {
	To        int64 `json:"to"`
	Offer     any   `json:"offer"`
	Answer    any   `json:"answer"`
	Candidate any   `json:"candidate"`
}

func (r *callReq) field(name string) any {
	switch name {
	case "offer":
		return r.Offer
	case "answer":
		return r.Answer
	case "candidate":
		return r.Candidate
	}
	return nil
}

// relay 把入站信令以 out 事件转给 to；field 为空时只带 from
func relay(out, field string) chat.Handler {
	return chat.HandlerFunc(func(_ context.Context, em chat.Emitter, req *chat.Request) error {
		in, err := decode.DecodeJSON[callReq](req.Data)
		if err != nil {
			return errs.ErrArgs.WrapMsg(err.Error())
		}
		if in.To <= 0 {
			return errs.ErrArgs.WrapMsg("to is required", "event", req.Event)
		}
		payload := map[string]any{"from": req.UserID}
		if field != "" {
			payload[field] = in.field(field)
		}
		// 对方不在线时静默丢弃
		em.Emit(em.Lookup(in.To)[0], out, payload)
		return nil
	})
}
