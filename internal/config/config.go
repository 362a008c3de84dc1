package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	Secret         string        `mapstructure:"secret"`
	IdentityHeader string        `mapstructure:"identity_header"`
	TrustClientIDs bool          `mapstructure:"trust_client_ids"`

	Access     AccessConfig     `mapstructure:"access"`
	Rooms      RoomsConfig      `mapstructure:"rooms"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Media      MediaConfig      `mapstructure:"media"`
	Store      StoreConfig      `mapstructure:"store"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

type AccessConfig struct {
	RequireReapproval bool          `mapstructure:"require_reapproval"`
	ClaimUnowned      bool          `mapstructure:"claim_unowned"`
	RequestTTL        time.Duration `mapstructure:"request_ttl"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RequestRate       int           `mapstructure:"request_rate"`
	RequestWindow     time.Duration `mapstructure:"request_window"`
}

type RoomsConfig struct {
	MaxParticipants int           `mapstructure:"max_participants"`
	IdleGrace       time.Duration `mapstructure:"idle_grace"`
}

type SupervisorConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type MediaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	ICEServers []string `mapstructure:"ice_servers"`
}

type StoreConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type NotifyConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisChannel  string `mapstructure:"redis_channel"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("identity_header", "X-User-Id")
	v.SetDefault("trust_client_ids", false)

	v.SetDefault("access.require_reapproval", true)
	v.SetDefault("access.claim_unowned", true)
	v.SetDefault("access.request_ttl", "10m")
	v.SetDefault("access.poll_interval", "3s")
	v.SetDefault("access.request_rate", 5)
	v.SetDefault("access.request_window", "1m")

	v.SetDefault("rooms.max_participants", 0)
	v.SetDefault("rooms.idle_grace", "1m")
	v.SetDefault("supervisor.sweep_interval", "30s")

	v.SetDefault("media.enabled", true)
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("notify.redis_addr", "")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_channel", "call:notifications")
	v.SetDefault("log.level", "info")
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// Every key can be overridden by a CALL_ prefixed variable, e.g.
// CALL_ACCESS_REQUEST_TTL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.ReadLimit <= 0:
		return fmt.Errorf("read_limit must be positive")
	case c.PingPeriod <= 0:
		return fmt.Errorf("ping_period must be positive")
	case c.Rooms.MaxParticipants < 0:
		return fmt.Errorf("rooms.max_participants must not be negative")
	case c.Access.RequestRate <= 0 || c.Access.RequestWindow <= 0:
		return fmt.Errorf("access.request_rate and access.request_window must be positive")
	}
	return nil
}
