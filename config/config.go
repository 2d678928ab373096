// Package config composes every module's own Config struct into one
// top-level document, loaded through a single spf13/viper instance
// (wrapped by this module's viper package) and validated end to end
// before the replicator boots any subsystem.
package config

import (
	"io"

	validator "github.com/go-playground/validator/v10"

	"github.com/nabbar/wsrepl/cert"
	"github.com/nabbar/wsrepl/gcache"
	"github.com/nabbar/wsrepl/gcs"
	"github.com/nabbar/wsrepl/groupcomm"
	logcfg "github.com/nabbar/wsrepl/logger/config"
	"github.com/nabbar/wsrepl/replicator"
	libvpr "github.com/nabbar/wsrepl/viper"
)

// Config is the complete on-disk configuration for one replicator node.
type Config struct {
	Logger        logcfg.Options    `mapstructure:"logger" json:"logger" yaml:"logger" toml:"logger"`
	GroupComm     groupcomm.Config  `mapstructure:"groupcomm" json:"groupcomm" yaml:"groupcomm" toml:"groupcomm" validate:"required"`
	GCS           gcs.Config        `mapstructure:"gcs" json:"gcs" yaml:"gcs" toml:"gcs" validate:"required"`
	GCache        gcache.Config     `mapstructure:"gcache" json:"gcache" yaml:"gcache" toml:"gcache" validate:"required"`
	Cert          cert.Config       `mapstructure:"cert" json:"cert" yaml:"cert" toml:"cert" validate:"required"`
	Repl          replicator.Config `mapstructure:"repl" json:"repl" yaml:"repl" toml:"repl" validate:"required"`
	CheckpointDir string            `mapstructure:"checkpoint_dir" json:"checkpoint_dir" yaml:"checkpoint_dir" toml:"checkpoint_dir" validate:"required"`
	Monitor       MonitorConfig     `mapstructure:"monitor" json:"monitor" yaml:"monitor" toml:"monitor"`
	Notify        NotifyConfig      `mapstructure:"notify" json:"notify" yaml:"notify" toml:"notify"`
}

// MonitorConfig controls the optional /status and /metrics HTTP endpoints.
type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	Listen  string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required_if=Enabled true"`
}

// NotifyConfig controls the optional NATS side-channel publishing
// view-change/state-transition events for external subscribers.
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	NatsURL string `mapstructure:"nats_url" json:"nats_url" yaml:"nats_url" toml:"nats_url" validate:"required_if=Enabled true"`
	Subject string `mapstructure:"subject" json:"subject" yaml:"subject" toml:"subject"`
}

func Default() Config {
	return Config{
		GCS:           gcs.DefaultConfig(),
		GCache:        gcache.DefaultConfig("./data"),
		Cert:          cert.DefaultConfig(),
		Repl:          replicator.DefaultConfig(),
		CheckpointDir: "./data",
		Notify:        NotifyConfig{Subject: "repl.events"},
	}
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Load reads and unmarshals the configuration document exposed by vpr,
// then validates it.
func Load(vpr libvpr.Viper) (Config, error) {
	cfg := Default()

	if vpr == nil {
		return cfg, ErrorConfigMissingViper.Error()
	}

	if err := vpr.Unmarshal(&cfg); err != nil {
		return cfg, ErrorConfigLoadFailed.Error(err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, ErrorConfigValidation.Error(err)
	}

	return cfg, nil
}

// LoadReader reads cfg from r (given already-set config type on vpr, e.g.
// via vpr.SetConfigType("yaml")) before unmarshalling.
func LoadReader(vpr libvpr.Viper, r io.Reader) (Config, error) {
	if vpr == nil {
		return Config{}, ErrorConfigMissingViper.Error()
	}

	if err := vpr.ReadConfig(r); err != nil {
		return Config{}, ErrorConfigLoadFailed.Error(err)
	}

	return Load(vpr)
}
