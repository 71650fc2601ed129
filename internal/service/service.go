package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/audiolibrelab/mediactl/internal/bridge"
	"github.com/audiolibrelab/mediactl/internal/config"
	"github.com/audiolibrelab/mediactl/internal/media"
)

// ErrNotFound is returned for ids that are not registered
var ErrNotFound = errors.New("media not found")

// Service represents the media control interface used by the CLI and the
// HTTP server
type Service interface {
	// Lifecycle
	Open(ctx context.Context, src string) (string, error)
	Release(ctx context.Context, id string) error
	ForceStop()

	// Playback operations
	Play(ctx context.Context, id string, opts media.PlayOptions) error
	Pause(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	SeekTo(ctx context.Context, id string, ms int) error
	SetVolume(ctx context.Context, id string, volume float64) error
	SetRate(ctx context.Context, id string, rate float64) error

	// Recording operations
	StartRecord(ctx context.Context, id string) error
	StopRecord(ctx context.Context, id string) error
	PauseRecord(ctx context.Context, id string) error
	ResumeRecord(ctx context.Context, id string) error

	// Queries
	Position(ctx context.Context, id string) (float64, error)
	Amplitude(ctx context.Context, id string) (float64, error)

	// Information operations
	Status(id string) (MediaStatus, error)
	List() []MediaStatus
	GetBridgeStatus() BridgeStatus
	GetConfig() *config.Config
	GetLastError() string

	// Subscribe streams accepted status events until cancel is called
	Subscribe() (<-chan media.StatusEvent, func())

	Close() error
}

// MediaStatus is a snapshot of one handle's cached state. Unknown
// duration and position are reported as -1.
type MediaStatus struct {
	ID        string       `json:"id"`
	Src       string       `json:"src"`
	State     media.State  `json:"state"`
	StateName string       `json:"state_name"`
	Duration  float64      `json:"duration"`
	Position  float64      `json:"position"`
	LastError *media.Error `json:"last_error,omitempty"`
}

// BridgeStatus describes the bridge behind the service
type BridgeStatus struct {
	Type           string `json:"type"`
	Platform       string `json:"platform"`
	MessageChannel bool   `json:"message_channel"`
	Ready          bool   `json:"ready"`
	Handles        int    `json:"handles"`
	Error          string `json:"error,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// MediaService is the main service implementation
type MediaService struct {
	cfg     *config.Config
	bridge  media.Bridge
	session *media.Session

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates the bridge selected by cfg and starts a media session on it
func New(cfg *config.Config, logWriter io.Writer) (Service, error) {
	if logWriter == nil {
		logWriter = io.Discard
	}

	b, err := bridge.New(cfg, logWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s bridge: %w", cfg.Bridge.Type, err)
	}
	return NewWithBridge(cfg, b), nil
}

// NewWithBridge starts a media session on an existing bridge
func NewWithBridge(cfg *config.Config, b media.Bridge) *MediaService {
	session := media.NewSession(b, media.SessionOptions{
		MessageChannel: cfg.MessageChannelEnabled(),
	})
	session.Start()

	slog.Debug("Media service started",
		"bridge", cfg.Bridge.Type,
		"platform", cfg.Bridge.Platform,
		"message_channel", cfg.MessageChannelEnabled())

	return &MediaService{
		cfg:     cfg,
		bridge:  b,
		session: session,
	}
}

// Open creates a handle for src and waits for the native side to accept it.
// The id is returned even on failure so the handle's error can be inspected.
func (s *MediaService) Open(ctx context.Context, src string) (string, error) {
	if err := s.session.Err(); err != nil {
		return "", fmt.Errorf("media session failed: %w", err)
	}

	h := s.session.Create(src, media.Options{
		OnError: func(err *media.Error) {
			slog.Warn("Media error", "src", src, "error", err)
		},
	})
	if _, err := s.await(ctx, "create", h.ID(), h.Created()); err != nil {
		return h.ID(), err
	}
	slog.Debug("Media opened", "id", h.ID(), "src", src)
	return h.ID(), nil
}

func (s *MediaService) Play(ctx context.Context, id string, opts media.PlayOptions) error {
	return s.run(ctx, id, "play", func(h *media.Handle) *media.Call { return h.Play(opts) })
}

func (s *MediaService) Pause(ctx context.Context, id string) error {
	return s.run(ctx, id, "pause", (*media.Handle).Pause)
}

func (s *MediaService) Stop(ctx context.Context, id string) error {
	return s.run(ctx, id, "stop", (*media.Handle).Stop)
}

func (s *MediaService) SeekTo(ctx context.Context, id string, ms int) error {
	return s.run(ctx, id, "seek", func(h *media.Handle) *media.Call { return h.SeekTo(ms) })
}

func (s *MediaService) SetVolume(ctx context.Context, id string, volume float64) error {
	return s.run(ctx, id, "set volume", func(h *media.Handle) *media.Call { return h.SetVolume(volume) })
}

func (s *MediaService) SetRate(ctx context.Context, id string, rate float64) error {
	return s.run(ctx, id, "set rate", func(h *media.Handle) *media.Call { return h.SetRate(rate) })
}

func (s *MediaService) StartRecord(ctx context.Context, id string) error {
	return s.run(ctx, id, "start recording", (*media.Handle).StartRecord)
}

func (s *MediaService) StopRecord(ctx context.Context, id string) error {
	return s.run(ctx, id, "stop recording", (*media.Handle).StopRecord)
}

func (s *MediaService) PauseRecord(ctx context.Context, id string) error {
	return s.run(ctx, id, "pause recording", (*media.Handle).PauseRecord)
}

func (s *MediaService) ResumeRecord(ctx context.Context, id string) error {
	return s.run(ctx, id, "resume recording", (*media.Handle).ResumeRecord)
}

// Release frees the native resource; the id is gone once this returns nil
func (s *MediaService) Release(ctx context.Context, id string) error {
	return s.run(ctx, id, "release", (*media.Handle).Release)
}

// Position asks the native side for the current position in seconds
func (s *MediaService) Position(ctx context.Context, id string) (float64, error) {
	return s.query(ctx, id, "get position", (*media.Handle).CurrentPosition)
}

// Amplitude asks the native side for the current recording amplitude
func (s *MediaService) Amplitude(ctx context.Context, id string) (float64, error) {
	return s.query(ctx, id, "get amplitude", (*media.Handle).CurrentAmplitude)
}

// ForceStop stops and releases every open handle without waiting
func (s *MediaService) ForceStop() {
	s.session.ForceStop()
	s.clearLastError()
}

func (s *MediaService) Status(id string) (MediaStatus, error) {
	h, ok := s.session.Get(id)
	if !ok {
		return MediaStatus{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snapshot(h), nil
}

// List returns the status of every open handle, sorted by id
func (s *MediaService) List() []MediaStatus {
	handles := s.session.Handles()
	list := make([]MediaStatus, 0, len(handles))
	for _, h := range handles {
		list = append(list, snapshot(h))
	}
	return list
}

func (s *MediaService) GetBridgeStatus() BridgeStatus {
	status := BridgeStatus{
		Type:           s.cfg.Bridge.Type,
		Platform:       s.cfg.Bridge.Platform,
		MessageChannel: s.cfg.MessageChannelEnabled(),
		Handles:        s.session.Len(),
		LastError:      s.GetLastError(),
	}
	select {
	case <-s.session.Ready():
		status.Ready = true
	default:
	}
	if err := s.session.Err(); err != nil {
		status.Ready = false
		status.Error = err.Error()
	}
	return status
}

func (s *MediaService) GetConfig() *config.Config {
	return s.cfg
}

func (s *MediaService) Subscribe() (<-chan media.StatusEvent, func()) {
	return s.session.Subscribe(s.cfg.Events.Buffer)
}

// Close stops all media and shuts the bridge down
func (s *MediaService) Close() error {
	s.session.ForceStop()
	if c, ok := s.bridge.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// GetLastError returns the last error message (thread-safe)
func (s *MediaService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *MediaService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

func (s *MediaService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

func (s *MediaService) run(ctx context.Context, id, op string, fn func(*media.Handle) *media.Call) error {
	h, err := s.lookup(id)
	if err != nil {
		return err
	}
	_, err = s.await(ctx, op, id, fn(h))
	return err
}

func (s *MediaService) query(ctx context.Context, id, op string, fn func(*media.Handle) *media.Call) (float64, error) {
	h, err := s.lookup(id)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := fn(h).Float(ctx)
	s.track(op, id, err)
	return n, err
}

func (s *MediaService) lookup(id string) (*media.Handle, error) {
	if err := s.session.Err(); err != nil {
		return nil, fmt.Errorf("media session failed: %w", err)
	}
	h, ok := s.session.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

// await waits for call within the configured call timeout
func (s *MediaService) await(ctx context.Context, op, id string, call *media.Call) (any, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v, err := call.Wait(ctx)
	s.track(op, id, err)
	return v, err
}

func (s *MediaService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Bridge.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Bridge.CallTimeout)
}

func (s *MediaService) track(op, id string, err error) {
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to %s %s: %v", op, id, err))
		return
	}
	s.clearLastError()
}

func snapshot(h *media.Handle) MediaStatus {
	state := h.State()
	return MediaStatus{
		ID:        h.ID(),
		Src:       h.Src(),
		State:     state,
		StateName: state.String(),
		Duration:  finite(h.Duration()),
		Position:  finite(h.Position()),
		LastError: h.LastError(),
	}
}

// finite maps NaN and infinities to -1 so snapshots stay JSON encodable
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return -1
	}
	return f
}
