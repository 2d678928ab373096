package gcache

import (
	validator "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/wsrepl/errors"
)

// Config carries the recognised gcache.* configuration keys of spec.md §6.
type Config struct {
	MemMax   int    `mapstructure:"size" json:"size" yaml:"size" toml:"size" validate:"required,gt=0"`
	PageSize int    `mapstructure:"page_size" json:"page_size" yaml:"page_size" toml:"page_size" validate:"required,gt=0"`
	Dir      string `mapstructure:"dir" json:"dir" yaml:"dir" toml:"dir" validate:"required"`
	Name     string `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`
	Compress bool   `mapstructure:"compress" json:"compress" yaml:"compress" toml:"compress"`
}

func (c Config) Validate() liberr.Error {
	val := validator.New()

	if err := val.Struct(c); err != nil {
		out := ErrorParamsInvalid.Error()

		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, v := range verrs {
				out.Add(ErrorParamsInvalid.Error(v))
			}
		} else {
			out.Add(err)
		}

		return out
	}

	return nil
}

func DefaultConfig(dir string) Config {
	return Config{
		MemMax:   64 * 1024 * 1024,
		PageSize: 16 * 1024 * 1024,
		Dir:      dir,
		Name:     "gcache",
		Compress: false,
	}
}
