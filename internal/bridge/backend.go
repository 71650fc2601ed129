package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/audiolibrelab/mediactl/internal/bridge/sim"
	"github.com/audiolibrelab/mediactl/internal/config"
	"github.com/audiolibrelab/mediactl/internal/media"
)

// BackendType names a bridge implementation
type BackendType string

const (
	BackendTypeProcess BackendType = config.BridgeProcess
	BackendTypeSim     BackendType = config.BridgeSim
)

// Backend is a bridge plus the resources behind it
type Backend interface {
	media.Bridge
	io.Closer
	GetType() BackendType
}

// New builds the bridge selected by the configuration
func New(cfg *config.Config, logWriter io.Writer) (Backend, error) {
	switch determineBackend(cfg) {
	case BackendTypeProcess:
		env := []string{
			"MEDIACTL_PLATFORM=" + cfg.Bridge.Platform,
		}
		if cfg.MessageChannelEnabled() {
			env = append(env, "MEDIACTL_MESSAGE_CHANNEL=1")
		}
		p, err := StartProcess(cfg.Bridge.Command, env, logWriter)
		if err != nil {
			return nil, err
		}
		return &processBackend{Process: p}, nil
	case BackendTypeSim:
		return &simBackend{Engine: sim.New(sim.Options{
			Duration:      cfg.Sim.Duration,
			Amplitude:     cfg.Sim.Amplitude,
			CompleteAfter: cfg.Sim.CompleteAfter,
		})}, nil
	default:
		return nil, fmt.Errorf("unsupported bridge type: %s", cfg.Bridge.Type)
	}
}

func determineBackend(cfg *config.Config) BackendType {
	return BackendType(strings.ToLower(cfg.Bridge.Type))
}

// GetAvailableBackends lists the bridge types this build supports
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeProcess, BackendTypeSim}
}

type processBackend struct {
	*Process
}

func (b *processBackend) GetType() BackendType { return BackendTypeProcess }

type simBackend struct {
	*sim.Engine
}

func (b *simBackend) GetType() BackendType { return BackendTypeSim }
