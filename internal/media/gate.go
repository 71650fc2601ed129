package media

import "sync"

// ReadyGate is the name of the readiness gate opened by Session.Start
const ReadyGate = "onMediaPluginReady"

// Gate is a named one-shot readiness signal
type Gate struct {
	name string
	once sync.Once
	ch   chan struct{}
}

func NewGate(name string) *Gate {
	return &Gate{name: name, ch: make(chan struct{})}
}

func (g *Gate) Name() string {
	return g.name
}

// Complete marks the gate done. Later calls are no-ops.
func (g *Gate) Complete() {
	g.once.Do(func() { close(g.ch) })
}

// Done is closed once the gate completes
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}

func (g *Gate) Completed() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}
