package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/IYouKnow/atlas-probe/internal/tcpmsg"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Listen", cfg.Listen, "127.0.0.1:7878"},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Folder.BestEffort", cfg.Folder.BestEffort, false},
		{"Folder.Workers", cfg.Folder.Workers, 1},
		{"Folder.DedupeHardLinks", cfg.Folder.DedupeHardLinks, true},
		{"TCP.Framing", cfg.TCP.Framing, "single-read"},
		{"TCP.DialTimeout", cfg.TCP.DialTimeout, 10 * time.Second},
		{"Server.Burst", cfg.Server.Burst, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	cc, err := cfg.TCP.ClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.ReadBufferSize != 1024 || cc.MaxResponseBytes != 1<<20 || cc.Framing != tcpmsg.SingleRead {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ATLAS_FOLDER_BEST_EFFORT", "true")
	t.Setenv("ATLAS_FOLDER_WORKERS", "8")
	t.Setenv("ATLAS_TCP_FRAMING", "until-eof")
	t.Setenv("ATLAS_TCP_READ_BUFFER", "4KiB")
	t.Setenv("ATLAS_TCP_DIAL_TIMEOUT", "250ms")

	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	opts := cfg.Folder.Options()
	if !opts.SkipPermissionDenied || opts.Workers != 8 {
		t.Errorf("Options() = %+v", opts)
	}
	cc, err := cfg.TCP.ClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.Framing != tcpmsg.UntilEOF || cc.ReadBufferSize != 4096 || cc.DialTimeout != 250*time.Millisecond {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"tcp.framing", "length-prefixed"},
		{"tcp.read_buffer", "lots"},
		{"tcp.read_buffer", "1GiB"},
		{"folder.workers", "-2"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			if _, err := Load(v); err == nil {
				t.Errorf("Load() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestDialerWithoutProxy(t *testing.T) {
	d, err := TCPConfig{}.Dialer()
	if err != nil || d != nil {
		t.Errorf("Dialer() = %v, %v; want nil, nil", d, err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := parseLevel(raw); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
