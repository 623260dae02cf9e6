package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/muxlog/internal/demux"
	"github.com/tinytelemetry/muxlog/internal/model"
	"github.com/tinytelemetry/muxlog/internal/router"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultTCPPort       = 4000
	defaultAPIPort       = 3000
	defaultMuxBufferSize = DefaultMuxBuffer
	defaultThrottle      = throttleReplay
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"

	throttleReplay = "replay"
	throttleNone   = "none"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	TCPEnabled     bool          `mapstructure:"tcp-enabled" yaml:"tcp-enabled"`
	TCPPort        int           `mapstructure:"tcp-port" yaml:"tcp-port"`
	TCPAddr        string        `mapstructure:"tcp-addr" yaml:"tcp-addr"`
	File           string        `mapstructure:"file" yaml:"file,omitempty"`
	FileFollow     bool          `mapstructure:"file-follow" yaml:"file-follow"`
	MuxBufferSize  int           `mapstructure:"mux-buffer-size" yaml:"mux-buffer-size"`
	APIEnabled     bool          `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort        int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr        string        `mapstructure:"api-addr" yaml:"api-addr"`
	HighWaterMark  int           `mapstructure:"high-water-mark" yaml:"high-water-mark"`
	StageBuffer    int           `mapstructure:"stage-buffer" yaml:"stage-buffer"`
	BranchBuffer   int           `mapstructure:"branch-buffer" yaml:"branch-buffer"`
	OutputBuffer   int           `mapstructure:"output-buffer" yaml:"output-buffer"`
	Delimiter      string        `mapstructure:"delimiter" yaml:"delimiter"`
	Throttle       string        `mapstructure:"throttle" yaml:"throttle"`
	MaxGap         time.Duration `mapstructure:"max-gap" yaml:"max-gap"`
	InlinePolicy   string        `mapstructure:"inline-policy" yaml:"inline-policy"`
	DecoderPolicy  string        `mapstructure:"decoder-policy" yaml:"decoder-policy"`
	OutputEnvelope bool          `mapstructure:"output-envelope" yaml:"output-envelope"`
	LogLevel       string        `mapstructure:"log-level" yaml:"log-level"`
	LogFormat      string        `mapstructure:"log-format" yaml:"log-format"`
	ConfigPath     string        `mapstructure:"-" yaml:"-"` // not from config file
}

// loadConfig resolves configuration from defaults, the config file,
// MUXLOG_* environment variables and changed command line flags, in
// increasing priority. flags may be nil.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("MUXLOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("file", "")
	v.SetDefault("file-follow", false)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("high-water-mark", model.DefaultHighWaterMark)
	v.SetDefault("stage-buffer", model.DefaultStageBuffer)
	v.SetDefault("branch-buffer", model.DefaultBranchBuffer)
	v.SetDefault("output-buffer", model.DefaultOutputBuffer)
	v.SetDefault("delimiter", string(model.DefaultDelimiter))
	v.SetDefault("throttle", defaultThrottle)
	v.SetDefault("max-gap", time.Duration(0))
	v.SetDefault("inline-policy", router.PolicyDrop.String())
	v.SetDefault("decoder-policy", router.PolicyDrop.String())
	v.SetDefault("output-envelope", false)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || f.Name == "print-config" {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return cfg, bindErr
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "muxlog", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

func (cfg *appConfig) validate() error {
	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if len(cfg.Delimiter) != 1 {
		return fmt.Errorf("invalid delimiter %q: must be a single byte", cfg.Delimiter)
	}
	if cfg.HighWaterMark <= 0 {
		return fmt.Errorf("invalid high-water-mark: %d", cfg.HighWaterMark)
	}
	switch cfg.Throttle {
	case throttleReplay, throttleNone:
	default:
		return fmt.Errorf("invalid throttle %q: want %q or %q", cfg.Throttle, throttleReplay, throttleNone)
	}
	if cfg.MaxGap < 0 {
		return fmt.Errorf("invalid max-gap: %s", cfg.MaxGap)
	}
	if _, err := router.ParsePolicy(cfg.InlinePolicy); err != nil {
		return fmt.Errorf("invalid inline-policy: %w", err)
	}
	if _, err := router.ParsePolicy(cfg.DecoderPolicy); err != nil {
		return fmt.Errorf("invalid decoder-policy: %w", err)
	}
	if strings.HasPrefix(cfg.File, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.File = filepath.Join(home, cfg.File[2:])
		}
	}
	return nil
}

// pipelineConfig maps the validated application config onto the
// demultiplexer tunables.
func (cfg appConfig) pipelineConfig() demux.Config {
	inline, _ := router.ParsePolicy(cfg.InlinePolicy)
	decoders, _ := router.ParsePolicy(cfg.DecoderPolicy)
	return demux.Config{
		Decoders:      defaultDecoders(),
		HighWaterMark: cfg.HighWaterMark,
		StageBuffer:   cfg.StageBuffer,
		BranchBuffer:  cfg.BranchBuffer,
		OutputBuffer:  cfg.OutputBuffer,
		Delimiter:     cfg.Delimiter[0],
		MaxGap:        cfg.MaxGap,
		InlinePolicy:  inline,
		DecoderPolicy: decoders,
	}
}
