package media

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SessionOptions configures a Session
type SessionOptions struct {
	// MessageChannel routes status events through the native message
	// channel. When false, a bridge implementing StatusSource is used.
	MessageChannel bool
	// NewID generates handle ids. Defaults to random UUIDs.
	NewID func() string
}

// Session owns the registry of live handles and the bridge they use
type Session struct {
	bridge   Bridge
	registry *Registry
	channel  bool
	newID    func() string
	gate     *Gate

	startOnce sync.Once

	subsMu  sync.Mutex
	subs    map[int]chan StatusEvent
	nextSub int

	errMu sync.RWMutex
	err   error
}

func NewSession(b Bridge, opts SessionOptions) *Session {
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Session{
		bridge:   b,
		registry: NewRegistry(),
		channel:  opts.MessageChannel,
		newID:    newID,
		gate:     NewGate(ReadyGate),
		subs:     make(map[int]chan StatusEvent),
	}
}

// Start wires inbound status delivery. On channel platforms it opens the
// persistent message channel; otherwise it subscribes to the bridge if it
// is a StatusSource. The readiness gate completes either way.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		if !s.channel {
			if src, ok := s.bridge.(StatusSource); ok {
				src.HandleStatus(s.OnStatus)
			}
			s.gate.Complete()
			slog.Debug("Media session started", "message_channel", false)
			return
		}

		s.bridge.Exec(Command{
			Service: ServiceName,
			Method:  OpMessageChannel.Method(),
			Args:    []any{},
			Keep:    true,
		}, s.onChannelMessage)
		s.gate.Complete()
		slog.Debug("Media session started", "message_channel", true, "gate", s.gate.Name())
	})
}

// Ready is closed once the session can receive status events
func (s *Session) Ready() <-chan struct{} {
	return s.gate.Done()
}

// Err returns the fatal channel error, if one occurred
func (s *Session) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

// Create registers a new handle for src and issues the create command
func (s *Session) Create(src string, opts Options) *Handle {
	h := newHandle(s, s.newID(), src, opts)
	s.registry.add(h)
	h.created = s.dispatch(h, OpCreate, src)
	return h
}

// Get returns the registered handle for id
func (s *Session) Get(id string) (*Handle, bool) {
	return s.registry.Get(id)
}

func (s *Session) Len() int {
	return s.registry.Len()
}

// Handles returns a snapshot of all registered handles
func (s *Session) Handles() []*Handle {
	return s.registry.Handles()
}

// ForceStop stops and releases every registered handle. The registry is
// empty on return whatever the native side replies.
func (s *Session) ForceStop() {
	handles := s.registry.Handles()
	for _, h := range handles {
		h.Stop()
		h.Release()
		s.registry.remove(h.id)
	}
	slog.Debug("Force stopped media handles", "count", len(handles))
}

// OnStatus applies one status event to the handle registered under id.
// Events for unknown ids are logged and dropped.
func (s *Session) OnStatus(id string, msgType MsgType, value any) {
	h, ok := s.registry.Get(id)
	if !ok {
		slog.Warn("Received status for unknown media", "id", id, "msg_type", msgType)
		return
	}

	switch msgType {
	case MsgState:
		n, ok := toNumber(value)
		if !ok {
			slog.Warn("Dropping non-numeric media state", "id", id, "value", value)
			return
		}
		state := State(int(n))
		h.setState(state)
		if h.opts.OnStatus != nil {
			h.opts.OnStatus(state)
		}
		if state == StateStopped && h.opts.OnSuccess != nil {
			h.opts.OnSuccess()
		}
	case MsgDuration:
		n, ok := toNumber(value)
		if !ok {
			slog.Warn("Dropping non-numeric media duration", "id", id, "value", value)
			return
		}
		h.setDuration(n)
	case MsgPosition:
		n, _ := toNumber(value)
		h.setPosition(n)
	case MsgError:
		merr := AsError(value)
		if merr == nil {
			merr = &Error{Message: "unknown media error"}
		}
		h.reportError(merr)
	default:
		slog.Warn("Unhandled media status", "id", id, "msg_type", msgType)
		return
	}

	s.publish(StatusEvent{ID: id, Type: msgType, Value: value})
}

// Subscribe returns a stream of accepted status events and a function
// that ends the subscription. Events are dropped for full subscribers.
func (s *Session) Subscribe(buffer int) (<-chan StatusEvent, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan StatusEvent, buffer)

	s.subsMu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, key)
			s.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Session) publish(ev StatusEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for key, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Status subscriber is full, dropping event", "subscriber", key, "id", ev.ID, "msg_type", ev.Type)
		}
	}
}

// dispatch issues op for h and settles the returned Call from the reply
func (s *Session) dispatch(h *Handle, op Op, extra ...any) *Call {
	call := newCall(op)
	args := make([]any, 0, len(extra)+1)
	args = append(args, h.id)
	args = append(args, extra...)

	slog.Debug("Dispatching media command", "id", h.id, "method", op.Method())
	s.bridge.Exec(Command{Service: ServiceName, Method: op.Method(), Args: args}, func(value any, err error) {
		s.settle(h, call, value, err)
	})
	return call
}

func (s *Session) settle(h *Handle, call *Call, value any, err error) {
	op := call.op
	if err != nil {
		merr := AsError(err)
		slog.Debug("Media command failed", "id", h.id, "method", op.Method(), "error", merr)
		if op.reportsToHandle() {
			h.reportError(merr)
		}
		call.settle(nil, merr)
		return
	}

	switch op {
	case OpCreate:
		if h.opts.OnCreated != nil {
			h.opts.OnCreated()
		}
	case OpStop:
		h.setPosition(0)
	case OpSeekTo, OpCurrentPosition:
		if n, ok := toNumber(value); ok {
			h.setPosition(n)
		}
	case OpRelease:
		s.registry.remove(h.id)
	}
	call.settle(value, nil)
}

func (s *Session) onChannelMessage(value any, err error) {
	if s.Err() != nil {
		return
	}
	if err != nil {
		slog.Warn("Media message channel reported an error", "error", err)
		return
	}

	msg, err := DecodeChannelMessage(value)
	if err != nil {
		if errors.Is(err, ErrUnknownAction) {
			s.fail(err)
			return
		}
		slog.Warn("Dropping malformed media channel message", "error", err)
		return
	}
	s.OnStatus(msg.Status.ID, msg.Status.MsgType, msg.Status.Value)
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	slog.Error("Media message channel failed", "error", err)
}
