package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-in-tests")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.PongWait != 60*time.Second {
		t.Errorf("keepalive = %v/%v", cfg.PingPeriod, cfg.PongWait)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0] != DefaultSTUN {
		t.Errorf("ICEServers = %v", cfg.ICEServers)
	}
	if cfg.Client.Room != "chat-room" {
		t.Errorf("Client.Room = %q", cfg.Client.Room)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-in-tests")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("room", "", "")
	flags.String("mode", "", "")
	if err := flags.Parse([]string{"--room=lobby", "--mode=video"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.Room != "lobby" || cfg.Client.Mode != "video" {
		t.Fatalf("client = %+v", cfg.Client)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-in-tests")
	t.Setenv("P2PCALL_PORT", "9090")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("Port = %d, want 9090", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:       8080,
			PingPeriod: time.Second,
			PongWait:   2 * time.Second,
			ICEServers: []string{DefaultSTUN},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"port", func(c *Config) { c.Port = 0 }, ErrBadPort},
		{"ping", func(c *Config) { c.PingPeriod = 3 * time.Second }, ErrPingPeriod},
		{"no ice", func(c *Config) { c.ICEServers = nil }, ErrNoICEServers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("bad ice uri", func(t *testing.T) {
		cfg := valid()
		cfg.ICEServers = []string{"http://example.com"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected an error for a non-stun uri")
		}
	})
}
