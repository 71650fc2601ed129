package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bridge types
const (
	BridgeProcess = "process"
	BridgeSim     = "sim"
)

// Message channel modes
const (
	ChannelAuto = "auto"
	ChannelOn   = "on"
	ChannelOff  = "off"
)

// channelPlatforms deliver status over the shared message channel
var channelPlatforms = map[string]bool{
	"android":       true,
	"amazon-fireos": true,
}

type GlobalsConfig struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Events EventsConfig `mapstructure:"events" yaml:"events"`
}

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig     `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Bridge BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
	Sim    SimConfig    `mapstructure:"sim" yaml:"sim"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Events EventsConfig `mapstructure:"events" yaml:"events"`

	// Profile is the name the config was resolved from
	Profile string `mapstructure:"-" yaml:"profile,omitempty"`
}

type BridgeConfig struct {
	Type           string        `mapstructure:"type" yaml:"type"`         // "process", "sim"
	Command        []string      `mapstructure:"command" yaml:"command"`   // native helper argv for "process"
	Platform       string        `mapstructure:"platform" yaml:"platform"` // "android", "ios", "linux", ...
	MessageChannel string        `mapstructure:"message_channel" yaml:"message_channel"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

type SimConfig struct {
	Duration      float64       `mapstructure:"duration" yaml:"duration"` // seconds reported for every source
	Amplitude     float64       `mapstructure:"amplitude" yaml:"amplitude"`
	CompleteAfter time.Duration `mapstructure:"complete_after" yaml:"complete_after"` // 0 never completes on its own
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Type:           BridgeSim,
			Platform:       "linux",
			MessageChannel: ChannelAuto,
			CallTimeout:    5 * time.Second,
		},
		Sim: SimConfig{
			Duration:  180,
			Amplitude: 0.5,
		},
		Server:  ServerConfig{Port: "8080"},
		Events:  EventsConfig{Buffer: 64},
		Profile: "default",
	}
}

// MessageChannelEnabled resolves the message channel mode for the platform
func (c *Config) MessageChannelEnabled() bool {
	switch c.Bridge.MessageChannel {
	case ChannelOn:
		return true
	case ChannelOff:
		return false
	default:
		return channelPlatforms[strings.ToLower(c.Bridge.Platform)]
	}
}

// LoadWithProfile reads configFile and resolves the requested profile,
// falling back to active_config and then "default". The selected profile
// is merged over the "default" profile, then over built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	resolved := mergeConfigs(Default(), rootConfig.Configs["default"])
	if configName != "default" {
		resolved = mergeConfigs(resolved, selected)
	}

	// Globals take priority over profile values
	if g := rootConfig.Globals; g != nil {
		if g.Server.Port != "" {
			resolved.Server.Port = g.Server.Port
		}
		if g.Events.Buffer != 0 {
			resolved.Events.Buffer = g.Events.Buffer
		}
	}

	applyEnvOverrides(resolved)
	resolved.Profile = configName

	if err := Validate(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// LoadOrDefault loads configFile when it exists. A missing file yields the
// built-in defaults, which run against the simulated bridge.
func LoadOrDefault(configFile, profile string) (*Config, error) {
	if _, err := os.Stat(configFile); err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, fmt.Errorf("config validation failed: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config file %s: %w", configFile, err)
	}
	return LoadWithProfile(configFile, profile)
}

// mergeConfigs overrides base with every non-zero field of profile
func mergeConfigs(base, profile *Config) *Config {
	result := *base
	result.Bridge.Command = append([]string(nil), base.Bridge.Command...)
	if profile == nil {
		return &result
	}

	if profile.Bridge.Type != "" {
		result.Bridge.Type = profile.Bridge.Type
	}
	if len(profile.Bridge.Command) > 0 {
		result.Bridge.Command = append([]string(nil), profile.Bridge.Command...)
	}
	if profile.Bridge.Platform != "" {
		result.Bridge.Platform = profile.Bridge.Platform
	}
	if profile.Bridge.MessageChannel != "" {
		result.Bridge.MessageChannel = profile.Bridge.MessageChannel
	}
	if profile.Bridge.CallTimeout != 0 {
		result.Bridge.CallTimeout = profile.Bridge.CallTimeout
	}

	if profile.Sim.Duration != 0 {
		result.Sim.Duration = profile.Sim.Duration
	}
	if profile.Sim.Amplitude != 0 {
		result.Sim.Amplitude = profile.Sim.Amplitude
	}
	if profile.Sim.CompleteAfter != 0 {
		result.Sim.CompleteAfter = profile.Sim.CompleteAfter
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}
	if profile.Events.Buffer != 0 {
		result.Events.Buffer = profile.Events.Buffer
	}
	return &result
}

// applyEnvOverrides lets MEDIACTL_* variables override the resolved config
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("MEDIACTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.IsSet("bridge.type") {
		cfg.Bridge.Type = v.GetString("bridge.type")
	}
	if v.IsSet("bridge.command") {
		cfg.Bridge.Command = strings.Fields(v.GetString("bridge.command"))
	}
	if v.IsSet("bridge.platform") {
		cfg.Bridge.Platform = v.GetString("bridge.platform")
	}
	if v.IsSet("bridge.message_channel") {
		cfg.Bridge.MessageChannel = v.GetString("bridge.message_channel")
	}
	if v.IsSet("bridge.call_timeout") {
		cfg.Bridge.CallTimeout = v.GetDuration("bridge.call_timeout")
	}
	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetString("server.port")
	}
}

// Validate checks a resolved configuration
func Validate(cfg *Config) error {
	switch cfg.Bridge.Type {
	case BridgeSim:
	case BridgeProcess:
		if len(cfg.Bridge.Command) == 0 {
			return fmt.Errorf("bridge.command is required for bridge type '%s'", BridgeProcess)
		}
	default:
		return fmt.Errorf("bridge.type must be '%s' or '%s', got: %s", BridgeProcess, BridgeSim, cfg.Bridge.Type)
	}

	switch cfg.Bridge.MessageChannel {
	case ChannelAuto, ChannelOn, ChannelOff:
	default:
		return fmt.Errorf("bridge.message_channel must be 'auto', 'on' or 'off', got: %s", cfg.Bridge.MessageChannel)
	}

	if cfg.Bridge.CallTimeout <= 0 {
		return fmt.Errorf("bridge.call_timeout must be > 0, got %s", cfg.Bridge.CallTimeout)
	}
	if cfg.Sim.Duration < 0 {
		return fmt.Errorf("sim.duration must be >= 0, got %.2f", cfg.Sim.Duration)
	}
	if cfg.Sim.Amplitude < 0 || cfg.Sim.Amplitude > 1 {
		return fmt.Errorf("sim.amplitude must be within [0, 1], got %.2f", cfg.Sim.Amplitude)
	}
	if cfg.Sim.CompleteAfter < 0 {
		return fmt.Errorf("sim.complete_after must be >= 0, got %s", cfg.Sim.CompleteAfter)
	}
	if cfg.Events.Buffer < 1 {
		return fmt.Errorf("events.buffer must be >= 1, got %d", cfg.Events.Buffer)
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server.port must be a TCP port number, got: %q", cfg.Server.Port)
	}
	return nil
}

// ValidateConfigurationFormat reads configFile and checks its profile layout
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("config file %s defines no profiles under 'configs'", configFile)
	}
	for name, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("configs.%s: profile is empty", name)
		}
		if profile.Bridge.MessageChannel != "" {
			switch profile.Bridge.MessageChannel {
			case ChannelAuto, ChannelOn, ChannelOff:
			default:
				return nil, fmt.Errorf("configs.%s.bridge.message_channel must be 'auto', 'on' or 'off', got: %s", name, profile.Bridge.MessageChannel)
			}
		}
	}
	if rootConfig.ActiveConfig != "" {
		if _, ok := rootConfig.Configs[rootConfig.ActiveConfig]; !ok {
			return nil, fmt.Errorf("active_config '%s' does not name a profile", rootConfig.ActiveConfig)
		}
	}
	return &rootConfig, nil
}

// ListProfiles returns the sorted profile names defined in configFile
func ListProfiles(configFile string) ([]string, error) {
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if !v.IsSet("configs." + newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}
