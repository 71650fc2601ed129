package media

import "sync"

type sentCommand struct {
	Command
	reply ReplyFunc
}

// fakeBridge records every command. When auto is set it replies inline.
type fakeBridge struct {
	mu   sync.Mutex
	sent []sentCommand
	auto func(cmd Command) (value any, reply bool, err error)

	status StatusFunc
}

func (b *fakeBridge) Exec(cmd Command, reply ReplyFunc) {
	b.mu.Lock()
	b.sent = append(b.sent, sentCommand{Command: cmd, reply: reply})
	auto := b.auto
	b.mu.Unlock()

	if auto != nil {
		if v, ok, err := auto(cmd); ok {
			reply(v, err)
		}
	}
}

func (b *fakeBridge) HandleStatus(fn StatusFunc) {
	b.status = fn
}

func (b *fakeBridge) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, c := range b.sent {
		out[i] = c.Method
	}
	return out
}

// last returns the most recent command sent for method
func (b *fakeBridge) last(method string) (sentCommand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.sent) - 1; i >= 0; i-- {
		if b.sent[i].Method == method {
			return b.sent[i], true
		}
	}
	return sentCommand{}, false
}

func newTestSession(b *fakeBridge) *Session {
	n := 0
	return NewSession(b, SessionOptions{NewID: func() string {
		n++
		return "media-" + string(rune('a'+n-1))
	}})
}
