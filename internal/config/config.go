// Package config turns viper settings into typed configuration for the
// probe components.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/IYouKnow/atlas-probe/internal/tcpmsg"
	"github.com/IYouKnow/atlas-probe/internal/usage"
)

type Config struct {
	Listen    string       `mapstructure:"listen"`
	ConfigDir string       `mapstructure:"config_dir"`
	Log       LogConfig    `mapstructure:"log"`
	Folder    FolderConfig `mapstructure:"folder"`
	TCP       TCPConfig    `mapstructure:"tcp"`
	Server    ServerConfig `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type FolderConfig struct {
	BestEffort      bool `mapstructure:"best_effort"`
	Workers         int  `mapstructure:"workers"`
	DedupeHardLinks bool `mapstructure:"dedupe_hardlinks"`
}

type TCPConfig struct {
	Framing     string        `mapstructure:"framing"`
	ReadBuffer  string        `mapstructure:"read_buffer"`
	MaxResponse string        `mapstructure:"max_response"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SOCKS5      string        `mapstructure:"socks5"`
}

type ServerConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int     `mapstructure:"burst"`
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:7878")
	v.SetDefault("config_dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("folder.best_effort", false)
	v.SetDefault("folder.workers", 1)
	v.SetDefault("folder.dedupe_hardlinks", true)
	v.SetDefault("tcp.framing", string(tcpmsg.SingleRead))
	v.SetDefault("tcp.read_buffer", "1KiB")
	v.SetDefault("tcp.max_response", "1MiB")
	v.SetDefault("tcp.dial_timeout", 10*time.Second)
	v.SetDefault("tcp.socks5", "")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.burst", 40)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if c.Folder.Workers < 0 {
		return Config{}, fmt.Errorf("folder.workers must not be negative, got %d", c.Folder.Workers)
	}
	if _, err := c.TCP.ClientConfig(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Options maps the folder settings onto the aggregator.
func (f FolderConfig) Options() usage.Options {
	return usage.Options{
		SkipPermissionDenied: f.BestEffort,
		Workers:              f.Workers,
		DedupeHardLinks:      f.DedupeHardLinks,
	}
}

// ClientConfig parses the human-readable sizes of the TCP settings.
func (t TCPConfig) ClientConfig() (tcpmsg.Config, error) {
	framing, err := tcpmsg.ParseFraming(t.Framing)
	if err != nil {
		return tcpmsg.Config{}, fmt.Errorf("tcp.framing: %w", err)
	}
	buf, err := parseSize("tcp.read_buffer", t.ReadBuffer)
	if err != nil {
		return tcpmsg.Config{}, err
	}
	max, err := parseSize("tcp.max_response", t.MaxResponse)
	if err != nil {
		return tcpmsg.Config{}, err
	}
	if buf > 64<<20 {
		return tcpmsg.Config{}, fmt.Errorf("tcp.read_buffer %s is larger than 64MiB", t.ReadBuffer)
	}
	return tcpmsg.Config{
		Framing:          framing,
		ReadBufferSize:   int(buf),
		MaxResponseBytes: int64(max),
		DialTimeout:      t.DialTimeout,
	}, nil
}

// Dialer returns the SOCKS5 dialer when one is configured, nil otherwise.
func (t TCPConfig) Dialer() (tcpmsg.Dialer, error) {
	if t.SOCKS5 == "" {
		return nil, nil
	}
	return tcpmsg.SOCKS5Dialer(t.SOCKS5, t.DialTimeout)
}

func parseSize(key, s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// NewLogger builds the process logger from the log settings.
func NewLogger(c LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	if strings.EqualFold(strings.TrimSpace(c.Format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
