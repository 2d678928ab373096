package cert

import (
	validator "github.com/go-playground/validator/v10"
)

// Config controls the certifier's queue depth and conflict logging
// verbosity (spec.md §4.5, ambient "cert.log_conflicts" knob from
// SPEC_FULL.md's ambient stack section).
type Config struct {
	QueueDepth   int  `mapstructure:"queue_depth" json:"queue_depth" yaml:"queue_depth" toml:"queue_depth" validate:"gte=1"`
	LogConflicts bool `mapstructure:"log_conflicts" json:"log_conflicts" yaml:"log_conflicts" toml:"log_conflicts"`
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

func DefaultConfig() Config {
	return Config{
		QueueDepth:   1024,
		LogConflicts: true,
	}
}
