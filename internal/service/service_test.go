package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/mediactl/internal/bridge/sim"
	"github.com/audiolibrelab/mediactl/internal/config"
	"github.com/audiolibrelab/mediactl/internal/media"
)

func newSimService(t *testing.T, platform string) *MediaService {
	t.Helper()
	cfg := config.Default()
	cfg.Bridge.Platform = platform
	cfg.Sim.Duration = 120
	cfg.Sim.Amplitude = 0.25

	engine := sim.New(sim.Options{Duration: cfg.Sim.Duration, Amplitude: cfg.Sim.Amplitude})
	svc := NewWithBridge(cfg, engine)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestOpen_InitialStatus(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	id, err := svc.Open(ctx, "song.mp3")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	status, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Src != "song.mp3" || status.State != media.StateNone || status.StateName != "None" {
		t.Errorf("Unexpected initial status: %+v", status)
	}
	if status.Duration != -1 || status.Position != -1 {
		t.Errorf("Expected unknown duration and position, got %v / %v", status.Duration, status.Position)
	}
}

func TestPlaybackCommands(t *testing.T) {
	for _, platform := range []string{"linux", "android"} {
		t.Run(platform, func(t *testing.T) {
			svc := newSimService(t, platform)
			ctx := context.Background()

			id, err := svc.Open(ctx, "song.mp3")
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			if err := svc.Play(ctx, id, media.PlayOptions{}); err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			status, _ := svc.Status(id)
			if status.State != media.StateRunning || status.Duration != 120 {
				t.Errorf("Expected running with duration 120, got %+v", status)
			}

			if err := svc.SeekTo(ctx, id, 30000); err != nil {
				t.Fatalf("SeekTo failed: %v", err)
			}
			pos, err := svc.Position(ctx, id)
			if err != nil {
				t.Fatalf("Position failed: %v", err)
			}
			if pos != 30 {
				t.Errorf("Expected position 30, got %v", pos)
			}

			if err := svc.Stop(ctx, id); err != nil {
				t.Fatalf("Stop failed: %v", err)
			}
			status, _ = svc.Status(id)
			if status.State != media.StateStopped || status.Position != 0 {
				t.Errorf("Expected stopped at 0, got %+v", status)
			}
		})
	}
}

func TestRecordingCommands(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	id, err := svc.Open(ctx, "memo.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := svc.StartRecord(ctx, id); err != nil {
		t.Fatalf("StartRecord failed: %v", err)
	}
	amp, err := svc.Amplitude(ctx, id)
	if err != nil || amp != 0.25 {
		t.Errorf("Expected amplitude 0.25, got %v / %v", amp, err)
	}

	if err := svc.PauseRecord(ctx, id); err != nil {
		t.Fatalf("PauseRecord failed: %v", err)
	}
	if err := svc.ResumeRecord(ctx, id); err != nil {
		t.Fatalf("ResumeRecord failed: %v", err)
	}
	if err := svc.StopRecord(ctx, id); err != nil {
		t.Fatalf("StopRecord failed: %v", err)
	}
	if amp, _ := svc.Amplitude(ctx, id); amp != 0 {
		t.Errorf("Expected amplitude 0 after stop, got %v", amp)
	}
}

func TestUnknownID(t *testing.T) {
	svc := newSimService(t, "linux")

	if err := svc.Play(context.Background(), "missing", media.PlayOptions{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Play, got %v", err)
	}
	if _, err := svc.Status("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Status, got %v", err)
	}
}

func TestLastError(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	id, _ := svc.Open(ctx, "song.mp3")

	err := svc.Pause(ctx, id)
	var merr *media.Error
	if !errors.As(err, &merr) || merr.Code != media.ErrNoneSupported {
		t.Fatalf("Expected media error from pausing an idle handle, got %v", err)
	}
	if !strings.Contains(svc.GetLastError(), "pause") {
		t.Errorf("Expected last error to mention pause, got %q", svc.GetLastError())
	}
	status, _ := svc.Status(id)
	if status.LastError == nil || status.LastError.Code != media.ErrNoneSupported {
		t.Errorf("Expected handle last error, got %+v", status.LastError)
	}

	if err := svc.Play(ctx, id, media.PlayOptions{}); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if svc.GetLastError() != "" {
		t.Errorf("Expected last error cleared, got %q", svc.GetLastError())
	}
}

func TestInvalidArguments(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()
	id, _ := svc.Open(ctx, "song.mp3")

	if err := svc.SetVolume(ctx, id, 1.5); !errors.Is(err, media.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for volume, got %v", err)
	}
	if err := svc.SetRate(ctx, id, 0); !errors.Is(err, media.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for rate, got %v", err)
	}
	if err := svc.SetVolume(ctx, id, 0.5); err != nil {
		t.Errorf("SetVolume failed: %v", err)
	}
}

func TestReleaseAndForceStop(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	a, _ := svc.Open(ctx, "a.mp3")
	b, _ := svc.Open(ctx, "b.mp3")
	if len(svc.List()) != 2 {
		t.Fatalf("Expected 2 handles, got %d", len(svc.List()))
	}

	if err := svc.Release(ctx, a); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := svc.Status(a); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected released handle to be gone, got %v", err)
	}

	svc.ForceStop()
	if n := len(svc.List()); n != 0 {
		t.Errorf("Expected no handles after force stop, got %d", n)
	}
	if _, err := svc.Status(b); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected %s to be gone, got %v", b, err)
	}
}

func TestList_SortedByID(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Open(ctx, "track.mp3"); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}

	list := svc.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("List not sorted at %d: %s >= %s", i, list[i-1].ID, list[i].ID)
		}
	}
}

func TestStatus_NonNumericPositionIsReportedUnknown(t *testing.T) {
	svc := newSimService(t, "linux")
	id, _ := svc.Open(context.Background(), "song.mp3")

	svc.session.OnStatus(id, media.MsgPosition, "not a number")

	status, _ := svc.Status(id)
	if status.Position != -1 {
		t.Errorf("Expected -1 for NaN position, got %v", status.Position)
	}
}

// silentBridge never replies
type silentBridge struct{}

func (silentBridge) Exec(media.Command, media.ReplyFunc) {}

func TestCallTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.CallTimeout = 20 * time.Millisecond
	svc := NewWithBridge(cfg, silentBridge{})

	id, err := svc.Open(context.Background(), "song.mp3")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if id == "" {
		t.Error("Expected the id of the pending handle")
	}
	if svc.GetLastError() == "" {
		t.Error("Expected last error to be set")
	}
}

func TestBridgeStatus(t *testing.T) {
	svc := newSimService(t, "android")
	svc.Open(context.Background(), "song.mp3")

	status := svc.GetBridgeStatus()
	if !status.Ready || !status.MessageChannel || status.Handles != 1 {
		t.Errorf("Unexpected bridge status: %+v", status)
	}
	if status.Type != config.BridgeSim || status.Platform != "android" {
		t.Errorf("Unexpected bridge identity: %+v", status)
	}
}

func TestSubscribe(t *testing.T) {
	svc := newSimService(t, "linux")
	ctx := context.Background()

	events, cancel := svc.Subscribe()
	defer cancel()

	id, _ := svc.Open(ctx, "song.mp3")
	if err := svc.Play(ctx, id, media.PlayOptions{}); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.ID != id || ev.Type != media.MsgState {
			t.Errorf("Unexpected first event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}
