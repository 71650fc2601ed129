package media

import (
	"context"
	"fmt"
	"sync"
)

// Call is the pending result of one dispatched command. It settles once.
type Call struct {
	op    Op
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newCall(op Op) *Call {
	return &Call{op: op, done: make(chan struct{})}
}

func failedCall(op Op, err error) *Call {
	c := newCall(op)
	c.settle(nil, err)
	return c
}

// Op returns the operation this call was issued for
func (c *Call) Op() Op {
	return c.op
}

// Done is closed when the bridge has replied
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the reply. It must only be read after Done is closed.
func (c *Call) Result() (any, error) {
	return c.value, c.err
}

// Wait blocks until the call settles or ctx is done. Giving up does not
// withdraw the command from the bridge.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", c.op, ctx.Err())
	}
}

// Float waits for the call and coerces the reply to a number
func (c *Call) Float(ctx context.Context) (float64, error) {
	v, err := c.Wait(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%s: non-numeric reply %v", c.op, v)
	}
	return n, nil
}

func (c *Call) settle(value any, err error) {
	c.once.Do(func() {
		c.value = value
		c.err = err
		close(c.done)
	})
}
