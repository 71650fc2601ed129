package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/mediactl/internal/media"
)

// ErrClosed is returned for commands on a stream that has ended
var ErrClosed = errors.New("bridge closed")

const maxFrameSize = 1 << 20

// request is one outbound command frame
type request struct {
	CallbackID   int64  `json:"callbackId"`
	Service      string `json:"service"`
	Action       string `json:"action"`
	Args         []any  `json:"args"`
	KeepCallback bool   `json:"keepCallback,omitempty"`
}

// frame is one inbound line: a reply to a callback id, or an unsolicited
// status event when Type is "status".
type frame struct {
	Type         string          `json:"type,omitempty"`
	CallbackID   int64           `json:"callbackId,omitempty"`
	Status       json.RawMessage `json:"status,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	KeepCallback bool            `json:"keepCallback,omitempty"`
}

type pendingCall struct {
	reply media.ReplyFunc
	keep  bool
}

// Stream speaks newline-delimited JSON with a native media engine over
// any reader/writer pair. It implements media.Bridge and media.StatusSource.
type Stream struct {
	encMu sync.Mutex
	enc   *json.Encoder

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]pendingCall
	closed   bool
	err      error
	onStatus media.StatusFunc

	done chan struct{}
}

// NewStream starts reading replies from r. Commands are written to w.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{
		enc:     json.NewEncoder(w),
		pending: make(map[int64]pendingCall),
		done:    make(chan struct{}),
	}
	go s.readLoop(r)
	return s
}

// Exec sends cmd and registers reply for its callback id
func (s *Stream) Exec(cmd media.Command, reply media.ReplyFunc) {
	if reply == nil {
		reply = func(any, error) {}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		reply(nil, ErrClosed)
		return
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = pendingCall{reply: reply, keep: cmd.Keep}
	s.mu.Unlock()

	args := cmd.Args
	if args == nil {
		args = []any{}
	}
	req := request{
		CallbackID:   id,
		Service:      cmd.Service,
		Action:       cmd.Method,
		Args:         args,
		KeepCallback: cmd.Keep,
	}

	s.encMu.Lock()
	err := s.enc.Encode(req)
	s.encMu.Unlock()
	if err != nil {
		// shutdown may already have failed this call with ErrClosed
		s.mu.Lock()
		_, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if ok {
			reply(nil, fmt.Errorf("failed to send %s: %w", cmd.Method, err))
		}
		return
	}
	slog.Debug("Bridge command sent", "callback_id", id, "method", cmd.Method)
}

// HandleStatus sets the receiver for unsolicited status frames
func (s *Stream) HandleStatus(fn media.StatusFunc) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Done is closed once the inbound side has ended
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended, nil for a clean EOF
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(line)
	}
	s.shutdown(scanner.Err())
}

func (s *Stream) handleLine(line []byte) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		slog.Warn("Skipping undecodable bridge frame", "error", err, "line", string(line))
		return
	}

	if f.Type == "status" {
		s.handleStatusFrame(f)
		return
	}

	s.mu.Lock()
	pc, ok := s.pending[f.CallbackID]
	if ok && !(pc.keep && f.KeepCallback) {
		delete(s.pending, f.CallbackID)
	}
	s.mu.Unlock()

	if !ok {
		slog.Warn("Dropping reply for unknown callback", "callback_id", f.CallbackID)
		return
	}

	value, err := decodeMessage(f.Message)
	if err != nil {
		pc.reply(nil, fmt.Errorf("failed to decode reply: %w", err))
		return
	}

	var replyStatus string
	if len(f.Status) > 0 {
		if err := json.Unmarshal(f.Status, &replyStatus); err != nil {
			pc.reply(nil, fmt.Errorf("failed to decode reply status: %w", err))
			return
		}
	}
	switch replyStatus {
	case "ok", "":
		pc.reply(value, nil)
	default:
		pc.reply(nil, media.AsError(value))
	}
}

func (s *Stream) handleStatusFrame(f frame) {
	var payload media.StatusPayload
	if err := json.Unmarshal(f.Status, &payload); err != nil {
		slog.Warn("Skipping undecodable status frame", "error", err)
		return
	}

	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()

	if fn == nil {
		slog.Debug("No status receiver, dropping status frame", "id", payload.ID, "msg_type", payload.MsgType)
		return
	}
	fn(payload.ID, payload.MsgType, payload.Value)
}

// shutdown fails every pending callback once the inbound side ends
func (s *Stream) shutdown(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	pending := s.pending
	s.pending = make(map[int64]pendingCall)
	s.mu.Unlock()

	failure := ErrClosed
	if err != nil {
		failure = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	for _, pc := range pending {
		pc.reply(nil, failure)
	}
	close(s.done)
	slog.Debug("Bridge stream closed", "pending", len(pending), "error", err)
}

func decodeMessage(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
