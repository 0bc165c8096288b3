package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/winmesh/internal/pathbuilder"
	"github.com/1broseidon/winmesh/internal/replication"
	"github.com/1broseidon/winmesh/internal/sampler"
)

// TransportKind selects the broadcast medium between window instances.
type TransportKind string

const (
	TransportMemory TransportKind = "memory" // In-process only; instances in other processes are not seen.
	TransportRelay  TransportKind = "relay"  // Unix socket fan-out served by `winmesh relay`.
	TransportRedis  TransportKind = "redis"  // Redis PUBLISH/SUBSCRIBE.
)

// TransportConfig configures the replication transport.
type TransportConfig struct {
	Kind TransportKind `yaml:"kind" toml:"kind"`
	// Socket overrides the relay socket path. Empty uses the runtime dir.
	Socket string      `yaml:"socket,omitempty" toml:"socket,omitempty"`
	Redis  RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig configures the redis transport.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `yaml:"db" toml:"db"`
}

// TimingConfig tunes the sample loop and the replication handshake.
type TimingConfig struct {
	SampleInterval      time.Duration `yaml:"sample_interval" toml:"sample_interval"`
	InitializingWindow  time.Duration `yaml:"initializing_window" toml:"initializing_window"`
	InitialRequestDelay time.Duration `yaml:"initial_request_delay" toml:"initial_request_delay"`
	InitialSyncTimeout  time.Duration `yaml:"initial_sync_timeout" toml:"initial_sync_timeout"`
}

// RenderConfig controls the drawn path.
type RenderConfig struct {
	Mode        string  `yaml:"mode" toml:"mode"`   // local or global
	Style       string  `yaml:"style" toml:"style"` // polygon or smooth (global mode only)
	Radius      float64 `yaml:"radius" toml:"radius"`
	Tension     float64 `yaml:"tension" toml:"tension"`
	Stroke      string  `yaml:"stroke" toml:"stroke"`
	StrokeWidth float64 `yaml:"stroke_width" toml:"stroke_width"`
	Background  string  `yaml:"background,omitempty" toml:"background,omitempty"`
}

// FallbackConfig is the display layout assumed when none can be read.
type FallbackConfig struct {
	MonitorCount int    `yaml:"monitor_count" toml:"monitor_count"`
	Width        int    `yaml:"width" toml:"width"`
	Height       int    `yaml:"height" toml:"height"`
	Arrangement  string `yaml:"arrangement" toml:"arrangement"`
}

// HTTPConfig configures the optional HTTP API.
type HTTPConfig struct {
	// Addr enables the API when non-empty, e.g. "127.0.0.1:7717".
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// SessionConfig configures where window ids are remembered.
type SessionConfig struct {
	Registry string `yaml:"registry,omitempty" toml:"registry,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // auto, text, json
}

// Config is the complete winmesh configuration.
type Config struct {
	Channel   string          `yaml:"channel" toml:"channel"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Timings   TimingConfig    `yaml:"timings" toml:"timings"`
	Render    RenderConfig    `yaml:"render" toml:"render"`
	Fallback  FallbackConfig  `yaml:"fallback" toml:"fallback"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Channel: replication.DefaultChannelName,
		Transport: TransportConfig{
			Kind:  TransportRelay,
			Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Timings: TimingConfig{
			SampleInterval:      16 * time.Millisecond,
			InitializingWindow:  5 * time.Second,
			InitialRequestDelay: 50 * time.Millisecond,
			InitialSyncTimeout:  3 * time.Second,
		},
		Render: RenderConfig{
			Mode:        string(pathbuilder.ModeLocal),
			Style:       string(pathbuilder.StylePolygon),
			Radius:      pathbuilder.DefaultRadius,
			Tension:     pathbuilder.DefaultTension,
			Stroke:      pathbuilder.DefaultSVGOptions.Stroke,
			StrokeWidth: pathbuilder.DefaultSVGOptions.StrokeWidth,
			Background:  pathbuilder.DefaultSVGOptions.Background,
		},
		Fallback: FallbackConfig{
			MonitorCount: sampler.DefaultFallback.MonitorCount,
			Width:        sampler.DefaultFallback.Width,
			Height:       sampler.DefaultFallback.Height,
			Arrangement:  string(sampler.DefaultFallback.Arrangement),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// ValidationError reports an invalid setting by its dotted path.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Source.File != "" && e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Source.File, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Err: fmt.Errorf(format, args...)}
}

// Validate checks every setting and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Channel) == "" {
		return invalid("channel", "channel is required")
	}

	switch c.Transport.Kind {
	case TransportMemory, TransportRelay:
	case TransportRedis:
		if strings.TrimSpace(c.Transport.Redis.Addr) == "" {
			return invalid("transport.redis.addr", "addr is required for the redis transport")
		}
		if c.Transport.Redis.DB < 0 {
			return invalid("transport.redis.db", "db must be >= 0")
		}
	default:
		return invalid("transport.kind", "kind must be one of: memory, relay, redis")
	}

	durations := []struct {
		path  string
		value time.Duration
	}{
		{"timings.sample_interval", c.Timings.SampleInterval},
		{"timings.initializing_window", c.Timings.InitializingWindow},
		{"timings.initial_request_delay", c.Timings.InitialRequestDelay},
		{"timings.initial_sync_timeout", c.Timings.InitialSyncTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return invalid(d.path, "must be a positive duration")
		}
	}

	switch pathbuilder.Mode(c.Render.Mode) {
	case pathbuilder.ModeLocal, pathbuilder.ModeGlobal:
	default:
		return invalid("render.mode", "mode must be one of: local, global")
	}
	switch pathbuilder.Style(c.Render.Style) {
	case pathbuilder.StylePolygon, pathbuilder.StyleSmooth:
	default:
		return invalid("render.style", "style must be one of: polygon, smooth")
	}
	if c.Render.Radius <= 0 {
		return invalid("render.radius", "radius must be > 0")
	}
	if c.Render.Tension < 0 || c.Render.Tension > 1 {
		return invalid("render.tension", "tension must be between 0 and 1")
	}
	if c.Render.StrokeWidth <= 0 {
		return invalid("render.stroke_width", "stroke_width must be > 0")
	}

	if c.Fallback.MonitorCount < 1 {
		return invalid("fallback.monitor_count", "monitor_count must be >= 1")
	}
	if c.Fallback.Width < 1 || c.Fallback.Height < 1 {
		return invalid("fallback", "width and height must be >= 1")
	}
	switch sampler.Arrangement(c.Fallback.Arrangement) {
	case sampler.Horizontal, sampler.Vertical:
	default:
		return invalid("fallback.arrangement", "arrangement must be one of: horizontal, vertical")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Path: "logging.level", Err: err}
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return invalid("logging.format", "format must be one of: auto, text, json")
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("level must be one of: debug, info, warn, error")
}

// Builder returns a path builder for the render settings.
func (c *Config) Builder() *pathbuilder.Builder {
	return &pathbuilder.Builder{
		Radius:  c.Render.Radius,
		Style:   pathbuilder.Style(c.Render.Style),
		Tension: c.Render.Tension,
	}
}

// SVGOptions returns the stroke settings for rendered SVG documents.
func (c *Config) SVGOptions() pathbuilder.SVGOptions {
	return pathbuilder.SVGOptions{
		Stroke:      c.Render.Stroke,
		StrokeWidth: c.Render.StrokeWidth,
		Background:  c.Render.Background,
	}
}

// FallbackLayout returns the sampler fallback display layout.
func (c *Config) FallbackLayout() sampler.FallbackConfig {
	return sampler.FallbackConfig{
		MonitorCount: c.Fallback.MonitorCount,
		Width:        c.Fallback.Width,
		Height:       c.Fallback.Height,
		Arrangement:  sampler.Arrangement(c.Fallback.Arrangement),
	}
}

// Redis returns the redis transport settings.
func (c *Config) Redis() replication.RedisConfig {
	return replication.RedisConfig{
		Addr:     c.Transport.Redis.Addr,
		Password: c.Transport.Redis.Password,
		DB:       c.Transport.Redis.DB,
	}
}
