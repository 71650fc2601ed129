package media

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestCreate_RegistersUnderFreshID(t *testing.T) {
	b := &fakeBridge{}
	s := NewSession(b, SessionOptions{})

	h1 := s.Create("one.mp3", Options{})
	h2 := s.Create("two.mp3", Options{})

	if h1.ID() == "" || h1.ID() == h2.ID() {
		t.Fatalf("Expected distinct non-empty ids, got %q and %q", h1.ID(), h2.ID())
	}
	if got, ok := s.Get(h1.ID()); !ok || got != h1 {
		t.Errorf("Expected Get to return the first handle")
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 registered handles, got %d", s.Len())
	}

	cmd, ok := b.last("create")
	if !ok {
		t.Fatal("Expected a create command")
	}
	if cmd.Service != ServiceName {
		t.Errorf("Expected service %q, got %q", ServiceName, cmd.Service)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != h2.ID() || cmd.Args[1] != "two.mp3" {
		t.Errorf("Unexpected create args: %v", cmd.Args)
	}
}

func TestCreate_InitialCachedValues(t *testing.T) {
	s := newTestSession(&fakeBridge{})
	h := s.Create("song.mp3", Options{})

	if h.Duration() != -1 {
		t.Errorf("Expected unknown duration -1, got %v", h.Duration())
	}
	if h.Position() != -1 {
		t.Errorf("Expected unknown position -1, got %v", h.Position())
	}
	if h.State() != StateNone {
		t.Errorf("Expected state None, got %v", h.State())
	}
}

func TestCreate_CreatedCallback(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)

	created := false
	h := s.Create("song.mp3", Options{OnCreated: func() { created = true }})
	if created {
		t.Fatal("OnCreated fired before the bridge replied")
	}

	cmd, _ := b.last("create")
	cmd.reply(nil, nil)

	if !created {
		t.Error("Expected OnCreated after create succeeded")
	}
	select {
	case <-h.Created().Done():
	default:
		t.Error("Expected the create call to be settled")
	}
}

func TestRelease_RemovesHandleOnSuccess(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	h := s.Create("song.mp3", Options{})

	call := h.Release()
	if _, ok := s.Get(h.ID()); !ok {
		t.Fatal("Handle left the registry before release was confirmed")
	}

	cmd, _ := b.last("release")
	cmd.reply(nil, nil)

	if _, ok := s.Get(h.ID()); ok {
		t.Error("Expected handle to be removed after release")
	}
	if _, err := call.Wait(context.Background()); err != nil {
		t.Errorf("Expected release call to succeed, got %v", err)
	}
}

func TestRelease_ErrorKeepsHandleAndReports(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)

	var reported *Error
	h := s.Create("song.mp3", Options{OnError: func(e *Error) { reported = e }})
	call := h.Release()

	cmd, _ := b.last("release")
	cmd.reply(nil, &Error{Code: ErrAborted, Message: "busy"})

	if _, ok := s.Get(h.ID()); !ok {
		t.Error("Expected handle to stay registered after failed release")
	}
	if reported == nil || reported.Code != ErrAborted {
		t.Errorf("Expected OnError with code %d, got %+v", ErrAborted, reported)
	}
	_, err := call.Wait(context.Background())
	var merr *Error
	if !errors.As(err, &merr) || merr.Message != "busy" {
		t.Errorf("Expected media error on call, got %v", err)
	}
}

func TestForceStop_EmptiesRegistry(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	for _, src := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		s.Create(src, Options{})
	}

	s.ForceStop()

	if s.Len() != 0 {
		t.Errorf("Expected empty registry, got %d handles", s.Len())
	}

	stops, releases := 0, 0
	for _, m := range b.methods() {
		switch m {
		case "stopPlayingAudio":
			stops++
		case "release":
			releases++
		}
	}
	if stops != 3 || releases != 3 {
		t.Errorf("Expected 3 stops and 3 releases, got %d and %d", stops, releases)
	}
}

func TestForceStop_LateReleaseReplyIsHarmless(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	h := s.Create("a.mp3", Options{})

	s.ForceStop()
	cmd, _ := b.last("release")
	cmd.reply(nil, nil)

	if _, ok := s.Get(h.ID()); ok {
		t.Error("Expected handle to stay gone")
	}
}

func TestOnStatus_StoppedFiresStatusThenSuccess(t *testing.T) {
	s := newTestSession(&fakeBridge{})

	var order []string
	h := s.Create("song.mp3", Options{
		OnStatus:  func(st State) { order = append(order, "status:"+st.String()) },
		OnSuccess: func() { order = append(order, "success") },
	})

	s.OnStatus(h.ID(), MsgState, float64(StateRunning))
	s.OnStatus(h.ID(), MsgState, float64(StateStopped))

	want := []string{"status:Running", "status:Stopped", "success"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Callback %d: expected %s, got %s", i, want[i], order[i])
		}
	}
	if h.State() != StateStopped {
		t.Errorf("Expected cached state Stopped, got %v", h.State())
	}
}

func TestOnStatus_Position(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"float", 12.5, 12.5},
		{"int", 3, 3},
		{"numeric string", "7.25", 7.25},
		{"padded string", " 2 ", 2},
		{"bool", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(&fakeBridge{})
			h := s.Create("song.mp3", Options{})

			s.OnStatus(h.ID(), MsgPosition, tt.value)

			if h.Position() != tt.want {
				t.Errorf("Expected position %v, got %v", tt.want, h.Position())
			}
		})
	}
}

func TestOnStatus_NonNumericPositionIsNaN(t *testing.T) {
	s := newTestSession(&fakeBridge{})
	h := s.Create("song.mp3", Options{})

	s.OnStatus(h.ID(), MsgPosition, "soon")

	if !math.IsNaN(h.Position()) {
		t.Errorf("Expected NaN position, got %v", h.Position())
	}
}

func TestOnStatus_DurationAndError(t *testing.T) {
	s := newTestSession(&fakeBridge{})

	var got *Error
	h := s.Create("song.mp3", Options{OnError: func(e *Error) { got = e }})

	s.OnStatus(h.ID(), MsgDuration, 215.3)
	if h.Duration() != 215.3 {
		t.Errorf("Expected duration 215.3, got %v", h.Duration())
	}

	s.OnStatus(h.ID(), MsgError, map[string]any{"code": float64(ErrDecode), "message": "bad frame"})
	if got == nil || got.Code != ErrDecode || got.Message != "bad frame" {
		t.Errorf("Expected decode error, got %+v", got)
	}
	if h.LastError() != got {
		t.Error("Expected handle to remember the last error")
	}
}

func TestOnStatus_NullErrorStillReportsError(t *testing.T) {
	s := newTestSession(&fakeBridge{})

	calls := 0
	var got *Error
	h := s.Create("song.mp3", Options{OnError: func(e *Error) {
		calls++
		got = e
	}})

	s.OnStatus(h.ID(), MsgError, nil)
	if calls != 1 {
		t.Fatalf("Expected one error callback, got %d", calls)
	}
	if got == nil {
		t.Fatal("Expected a non-nil error for a null ERROR value")
	}
	if got.Message == "" {
		t.Errorf("Expected a generic message, got %+v", got)
	}
	if h.LastError() == nil {
		t.Error("Expected handle last error to stay set")
	}
}

func TestOnStatus_UnknownIDInvokesNothing(t *testing.T) {
	s := newTestSession(&fakeBridge{})

	called := false
	s.Create("song.mp3", Options{
		OnStatus:  func(State) { called = true },
		OnSuccess: func() { called = true },
		OnError:   func(*Error) { called = true },
	})
	events, cancel := s.Subscribe(4)
	defer cancel()

	s.OnStatus("missing", MsgState, float64(StateStopped))
	s.OnStatus("missing", MsgError, 1)

	if called {
		t.Error("Expected no callbacks for an unknown id")
	}
	select {
	case ev := <-events:
		t.Errorf("Expected no events, got %+v", ev)
	default:
	}
}

func TestOnStatus_UnhandledTypeIsDropped(t *testing.T) {
	s := newTestSession(&fakeBridge{})
	h := s.Create("song.mp3", Options{})
	events, cancel := s.Subscribe(1)
	defer cancel()

	s.OnStatus(h.ID(), MsgType(42), 1)

	select {
	case ev := <-events:
		t.Errorf("Expected unhandled type to be dropped, got %+v", ev)
	default:
	}
}

func TestSeekTo_UpdatesPositionOnlyOnSuccess(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	h := s.Create("song.mp3", Options{})

	h.SeekTo(4200)
	cmd, _ := b.last("seekToAudio")
	if len(cmd.Args) != 2 || cmd.Args[1] != 4200 {
		t.Fatalf("Unexpected seek args: %v", cmd.Args)
	}
	if h.Position() != -1 {
		t.Errorf("Position changed before the bridge replied: %v", h.Position())
	}

	cmd.reply(4.2, nil)

	if h.Position() != 4.2 {
		t.Errorf("Expected position 4.2, got %v", h.Position())
	}
	if h.Duration() != -1 {
		t.Errorf("Expected duration to stay unknown, got %v", h.Duration())
	}
}

func TestSeekTo_FailureLeavesPosition(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)

	reported := false
	h := s.Create("song.mp3", Options{OnError: func(*Error) { reported = true }})
	s.OnStatus(h.ID(), MsgPosition, 10)

	h.SeekTo(1000)
	cmd, _ := b.last("seekToAudio")
	cmd.reply(nil, errors.New("seek failed"))

	if h.Position() != 10 {
		t.Errorf("Expected position to stay 10, got %v", h.Position())
	}
	if !reported {
		t.Error("Expected seek failure to reach OnError")
	}
}

func TestStop_ResetsPosition(t *testing.T) {
	b := &fakeBridge{auto: func(cmd Command) (any, bool, error) {
		return nil, cmd.Method == "stopPlayingAudio", nil
	}}
	s := newTestSession(b)
	h := s.Create("song.mp3", Options{})
	s.OnStatus(h.ID(), MsgPosition, 31)

	if _, err := h.Stop().Wait(context.Background()); err != nil {
		t.Fatalf("Unexpected stop error: %v", err)
	}
	if h.Position() != 0 {
		t.Errorf("Expected position 0 after stop, got %v", h.Position())
	}
}

func TestCurrentPosition_CachesAndReturns(t *testing.T) {
	b := &fakeBridge{auto: func(cmd Command) (any, bool, error) {
		if cmd.Method == "getCurrentPositionAudio" {
			return "18.5", true, nil
		}
		return nil, false, nil
	}}
	s := newTestSession(b)
	h := s.Create("song.mp3", Options{})

	pos, err := h.CurrentPosition().Float(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pos != 18.5 || h.Position() != 18.5 {
		t.Errorf("Expected 18.5, got call=%v cached=%v", pos, h.Position())
	}
}

func TestErrorRouting(t *testing.T) {
	tests := []struct {
		name     string
		run      func(h *Handle) *Call
		method   string
		toHandle bool
	}{
		{"play", func(h *Handle) *Call { return h.Play(PlayOptions{}) }, "startPlayingAudio", false},
		{"pause", func(h *Handle) *Call { return h.Pause() }, "pausePlayingAudio", true},
		{"stop", func(h *Handle) *Call { return h.Stop() }, "stopPlayingAudio", true},
		{"start record", func(h *Handle) *Call { return h.StartRecord() }, "startRecordingAudio", true},
		{"stop record", func(h *Handle) *Call { return h.StopRecord() }, "stopRecordingAudio", true},
		{"pause record", func(h *Handle) *Call { return h.PauseRecord() }, "pauseRecordingAudio", true},
		{"resume record", func(h *Handle) *Call { return h.ResumeRecord() }, "resumeRecordingAudio", true},
		{"volume", func(h *Handle) *Call { return h.SetVolume(0.5) }, "setVolume", false},
		{"rate", func(h *Handle) *Call { return h.SetRate(1.5) }, "setRate", false},
		{"position", func(h *Handle) *Call { return h.CurrentPosition() }, "getCurrentPositionAudio", false},
		{"amplitude", func(h *Handle) *Call { return h.CurrentAmplitude() }, "getCurrentAmplitudeAudio", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBridge{auto: func(cmd Command) (any, bool, error) {
				if cmd.Method == tt.method {
					return nil, true, &Error{Code: ErrNetwork}
				}
				return nil, false, nil
			}}
			s := newTestSession(b)

			reported := false
			h := s.Create("song.mp3", Options{OnError: func(*Error) { reported = true }})

			_, err := tt.run(h).Wait(context.Background())
			if err == nil {
				t.Fatal("Expected the call to fail")
			}
			if reported != tt.toHandle {
				t.Errorf("Expected OnError=%v, got %v", tt.toHandle, reported)
			}
		})
	}
}

func TestCommandArguments(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	h := s.Create("take.m4a", Options{})

	locked := true
	h.Play(PlayOptions{NumberOfLoops: 2, PlayAudioWhenScreenIsLocked: &locked})
	h.StartRecord()
	h.SetVolume(0.25)
	h.SetRate(2)

	play, _ := b.last("startPlayingAudio")
	if len(play.Args) != 3 || play.Args[1] != "take.m4a" {
		t.Fatalf("Unexpected play args: %v", play.Args)
	}
	opts, ok := play.Args[2].(map[string]any)
	if !ok || opts["numberOfLoops"] != 2 || opts["playAudioWhenScreenIsLocked"] != true {
		t.Errorf("Unexpected play options: %v", play.Args[2])
	}

	rec, _ := b.last("startRecordingAudio")
	if len(rec.Args) != 2 || rec.Args[1] != "take.m4a" {
		t.Errorf("Unexpected record args: %v", rec.Args)
	}

	vol, _ := b.last("setVolume")
	if len(vol.Args) != 2 || vol.Args[1] != 0.25 {
		t.Errorf("Unexpected volume args: %v", vol.Args)
	}

	rate, _ := b.last("setRate")
	if len(rate.Args) != 2 || rate.Args[1] != 2.0 {
		t.Errorf("Unexpected rate args: %v", rate.Args)
	}

	for _, m := range []string{"pausePlayingAudio", "stopPlayingAudio", "release"} {
		if _, ok := b.last(m); ok {
			t.Errorf("Did not expect %s to be sent", m)
		}
	}
}

func TestSetVolumeAndRate_RejectInvalid(t *testing.T) {
	b := &fakeBridge{}
	s := newTestSession(b)
	h := s.Create("song.mp3", Options{})

	calls := []*Call{h.SetVolume(1.5), h.SetVolume(-0.1), h.SetVolume(math.NaN()), h.SetRate(0), h.SetRate(8)}
	for i, c := range calls {
		_, err := c.Wait(context.Background())
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Call %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
	if _, ok := b.last("setVolume"); ok {
		t.Error("Invalid volume must not be dispatched")
	}
	if _, ok := b.last("setRate"); ok {
		t.Error("Invalid rate must not be dispatched")
	}
}

func TestCallWait_ContextDone(t *testing.T) {
	s := newTestSession(&fakeBridge{})
	h := s.Create("song.mp3", Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Pause().Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestSession(&fakeBridge{})
	h := s.Create("song.mp3", Options{})

	events, cancel := s.Subscribe(2)
	s.OnStatus(h.ID(), MsgDuration, 60)

	select {
	case ev := <-events:
		if ev.ID != h.ID() || ev.Type != MsgDuration {
			t.Errorf("Unexpected event: %+v", ev)
		}
	default:
		t.Fatal("Expected an event")
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Error("Expected the stream to be closed after cancel")
	}

	// publishing after cancel must not panic
	s.OnStatus(h.ID(), MsgDuration, 61)
}
