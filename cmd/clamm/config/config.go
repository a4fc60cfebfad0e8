package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/defistate/clamm-engine-go/protocols/clamm"
	tokenregistry "github.com/defistate/clamm-engine-go/protocols/tokenregistry"
)

// Token is a token entry of the config file.
type Token struct {
	Address  string `mapstructure:"address"`
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen          string
	LogLevel        string
	LogFormat       string
	PgDSN           string
	StreamBuffer    uint
	RateLimit       float64
	RateBurst       int
	ProtocolFee0    uint16
	ProtocolFee1    uint16
	Seed            string
	StreamURL       string
	ShutdownTimeout time.Duration
	Tokens          []Token
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", "127.0.0.1:8545")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "json")
	v.SetDefault("stream-buffer", 100)
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("rate-burst", 1)
	v.SetDefault("stream-url", "ws://127.0.0.1:8545")
	v.SetDefault("shutdown-timeout", 5*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("clamm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Listen:          v.GetString("listen"),
		LogLevel:        v.GetString("log-level"),
		LogFormat:       v.GetString("log-format"),
		PgDSN:           v.GetString("pg-dsn"),
		StreamBuffer:    v.GetUint("stream-buffer"),
		RateLimit:       v.GetFloat64("rate-limit"),
		RateBurst:       v.GetInt("rate-burst"),
		ProtocolFee0:    v.GetUint16("protocol-fee0"),
		ProtocolFee1:    v.GetUint16("protocol-fee1"),
		Seed:            v.GetString("seed"),
		StreamURL:       v.GetString("stream-url"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
	}
	if err := v.UnmarshalKey("tokens", &cfg.Tokens); err != nil {
		return Config{}, fmt.Errorf("decode tokens: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.StreamBuffer < 1 {
		return errors.New("stream-buffer must be greater than 0")
	}
	if c.RateLimit < 0 {
		return errors.New("rate-limit cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.New("rate-burst must be greater than 0 when rate-limit is set")
	}
	if err := c.ProtocolFee().Validate(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text", "zap":
	default:
		return fmt.Errorf("unknown log-format %q", c.LogFormat)
	}
	return nil
}

// ProtocolFee is the fee new pools start with.
func (c Config) ProtocolFee() clamm.ProtocolFee {
	return clamm.ProtocolFee{ZeroForOne: c.ProtocolFee0, OneForZero: c.ProtocolFee1}
}

// RegistryTokens converts the configured tokens.
func (c Config) RegistryTokens() ([]tokenregistry.Token, error) {
	out := make([]tokenregistry.Token, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", t.Symbol, t.Address)
		}
		out = append(out, tokenregistry.Token{
			Address:  common.HexToAddress(t.Address),
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return out, nil
}
