package chat

import (
	"encoding/json"

	"PSocial/tools/errs"
)

// 事件名与前端保持一致
const (
	EventJoined          = "JOINED"
	EventExited          = "EXITED"
	EventNewMessage      = "NEW_MESSAGE"
	EventMapMessage      = "MAP_MESSAGE"
	EventFailMessage     = "FAIL_MESSAGE"
	EventNewMessageAlert = "NEW_MESSAGE_ALERT"
	EventStartedTyping   = "STARTED_TYPING"
	EventStoppedTyping   = "STOPPED_TYPING"
	EventMessageSeen     = "MESSAGE_SEEN"
	EventCallUser        = "CALL_USER"
	EventAnswerCall      = "ANSWER_CALL"
	EventIceCandidate    = "ICE_CANDIDATE"
	EventEndCall         = "END_CALL"
	EventCallAccepted    = "CALL_ACCEPTED"
	EventIncomingCall    = "INCOMING_CALL"
	EventCallEnded       = "CALL_ENDED"
)

// Envelope 线上帧：{"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad frame: " + err.Error())
	}
	if env.Event == "" {
		return nil, errs.ErrArgs.WrapMsg("frame without event")
	}
	return &env, nil
}

func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errs.WrapMsg(err, "marshal frame data", "event", event)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
