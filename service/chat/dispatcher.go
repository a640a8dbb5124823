package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"PSocial/tools/errs"
)

// Request 一条入站事件，UserID 永远是握手鉴权得到的用户
type Request struct {
	UserID int64
	ConnID string
	Event  string
	Data   json.RawMessage
}

// Emitter handler 的出站能力
type Emitter interface {
	Lookup(userIDs ...int64) []string
	Emit(connID, event string, data any) bool
}

type Handler interface {
	Handle(ctx context.Context, em Emitter, req *Request) error
}

type HandlerFunc func(ctx context.Context, em Emitter, req *Request) error

func (f HandlerFunc) Handle(ctx context.Context, em Emitter, req *Request) error {
	return f(ctx, em, req)
}

// Dispatcher 事件名 -> handler
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(event string, h Handler) {
	d.mu.Lock()
	d.handlers[event] = h
	d.mu.Unlock()
}

func (d *Dispatcher) GetHandler(event string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[event]
	return h, ok
}

func (d *Dispatcher) Events() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for e := range d.handlers {
		out = append(out, e)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, em Emitter, req *Request) error {
	h, ok := d.GetHandler(req.Event)
	if !ok {
		return errs.ErrArgs.WrapMsg("no handler for event", "event", req.Event)
	}
	return h.Handle(ctx, em, req)
}
