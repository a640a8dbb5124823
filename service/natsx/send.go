package natsx

import (
	"context"
	"time"

	"PSocial/logger"
	"PSocial/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func toHeader(h map[string]string) nats.Header {
	hd := nats.Header{}
	for k, v := range h {
		hd.Add(k, v)
	}
	return hd
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// publish 带 Nats-Msg-Id 的 JetStream 发布，失败按 backoff 重试
func (c *Client) publish(ctx context.Context, subject string, data []byte, msgID string, retries int, backoff time.Duration) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header = toHeader(map[string]string{nats.MsgIdHdr: msgID})

	for i := 0; ; i++ {
		ack, perr := js.PublishMsg(msg, nats.Context(ctx))
		if perr == nil {
			logger.Debug("nats published", zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence),
				zap.Bool("duplicate", ack.Duplicate))
			return nil
		}
		err = perr
		if i >= retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errs.WrapMsg(err, "nats publish", "subject", subject, "msgId", msgID)
}
