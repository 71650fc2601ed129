package media

// Command is one outbound call to the native media implementation
type Command struct {
	Service string
	Method  string
	Args    []any
	// Keep asks the bridge to keep the reply callback registered so it can
	// be invoked more than once (used by the message channel).
	Keep bool
}

// ReplyFunc receives the outcome of a Command. It may be called from any
// goroutine, and more than once when the Command was sent with Keep.
type ReplyFunc func(value any, err error)

// Bridge is the opaque asynchronous boundary to the native engine.
// Exec must not block on the native side; the reply arrives later.
type Bridge interface {
	Exec(cmd Command, reply ReplyFunc)
}

// StatusFunc is called for every status event pushed by the native layer
type StatusFunc func(id string, msgType MsgType, value any)

// StatusSource is implemented by bridges that push status events directly
// instead of through the message channel.
type StatusSource interface {
	HandleStatus(fn StatusFunc)
}
