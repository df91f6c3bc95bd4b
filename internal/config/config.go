package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

var (
	ErrBadPort      = errors.New("port out of range")
	ErrPingPeriod   = errors.New("ping_period must be shorter than pong_wait")
	ErrNoICEServers = errors.New("at least one ice server is required")
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	StaticPath       string        `mapstructure:"static_path"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	Secret           string        `mapstructure:"secret"`
	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`
	LogLevel         string        `mapstructure:"log_level"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	Client           ClientConfig  `mapstructure:"client"`
}

// ClientConfig is only read by the headless peer.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Room      string `mapstructure:"room"`
	Mode      string `mapstructure:"mode"`
	AudioFile string `mapstructure:"audio_file"`
	VideoFile string `mapstructure:"video_file"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"server":    "client.server_url",
	"room":      "client.room",
	"mode":      "client.mode",
	"audio":     "client.audio_file",
	"video":     "client.video_file",
	"log-level": "log_level",
	"ice":       "ice_servers",
}

// Load reads config/config.<CONFIG_ENV>.yaml, then P2PCALL_* environment
// variables, then any flags given. Flags win.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("P2PCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Strs("ice_servers", cfg.ICEServers).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("chat_rate_limit", 10)
	v.SetDefault("chat_rate_interval", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []string{DefaultSTUN})
	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.room", "chat-room")
	v.SetDefault("client.mode", "audio")
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrBadPort, c.Port)
	}
	if c.PingPeriod >= c.PongWait {
		return ErrPingPeriod
	}
	if len(c.ICEServers) == 0 {
		return ErrNoICEServers
	}
	for _, raw := range c.ICEServers {
		if _, err := stun.ParseURI(raw); err != nil {
			return fmt.Errorf("ice server %q: %w", raw, err)
		}
	}
	return nil
}
