package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/dkeye/meshcall/internal/domain"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	Identity string `mapstructure:"identity"`

	Relay       RelayConfig       `mapstructure:"relay"`
	ICE         ICEConfig         `mapstructure:"ice"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Media       MediaConfig       `mapstructure:"media"`
}

type RelayConfig struct {
	// URL of the websocket relay; empty runs an in-process relay.
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	ReadLimit  int64         `mapstructure:"read_limit"`
}

type ICEConfig struct {
	Servers []string `mapstructure:"servers"`
}

type NegotiationConfig struct {
	CandidateLimit  int           `mapstructure:"candidate_limit"`
	PublishAttempts int           `mapstructure:"publish_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

type MediaConfig struct {
	Audio bool `mapstructure:"audio"`
}

// Flag names bound over the file and environment.
const (
	FlagConfigEnv = "config-env"
	FlagIdentity  = "identity"
	FlagRelay     = "relay"
	FlagPort      = "port"
)

// Load reads config/config.<env>.yaml, then MESHCALL_* environment
// variables, then flags. env defaults to $CONFIG_ENV, then "dev".
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if flags != nil {
		if f := flags.Lookup(FlagConfigEnv); f != nil && f.Changed {
			env = f.Value.String()
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("identity", "")
	v.SetDefault("relay.url", "")
	v.SetDefault("relay.token", "")
	v.SetDefault("relay.ping_period", "20s")
	v.SetDefault("relay.read_limit", 1<<20)
	v.SetDefault("ice.servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("negotiation.candidate_limit", 64)
	v.SetDefault("negotiation.publish_attempts", 3)
	v.SetDefault("negotiation.retry_backoff", "100ms")
	v.SetDefault("media.audio", true)

	v.SetEnvPrefix("MESHCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"identity":  FlagIdentity,
			"relay.url": FlagRelay,
			"port":      FlagPort,
		} {
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
	if cfg.Identity == "" {
		cfg.Identity = string(domain.RandomIdentity())
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("identity", cfg.Identity).
		Str("relay", cfg.Relay.URL).
		Msg("config ready")
	return &cfg, nil
}

// Validate reports configuration errors; they are all fatal at startup.
func (c *Config) Validate() error {
	var errs error
	if _, err := domain.NewIdentity(c.Identity); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("identity: %w", err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Relay.URL != "" && c.Relay.Token == "" {
		errs = multierr.Append(errs, fmt.Errorf("relay %s: %w", c.Relay.URL, domain.ErrMissingCredentials))
	}
	if c.Negotiation.CandidateLimit < 0 {
		errs = multierr.Append(errs, errors.New("negotiation.candidate_limit must not be negative"))
	}
	if c.Negotiation.PublishAttempts < 1 {
		errs = multierr.Append(errs, errors.New("negotiation.publish_attempts must be at least 1"))
	}
	return errs
}
