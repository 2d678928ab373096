package gcs

import (
	validator "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/wsrepl/errors"
)

// ConfigFlowControl carries the flow-control watermarks: once a member's
// advertised backlog exceeds High, a pause is multicast; senders resume
// once every member is back at or below Low (spec.md §4.3 "Back-pressure").
type ConfigFlowControl struct {
	High            uint64 `mapstructure:"high" json:"high" yaml:"high" toml:"high" validate:"required,gtfield=Low"`
	Low             uint64 `mapstructure:"low" json:"low" yaml:"low" toml:"low" validate:"gte=0"`
	SampleHostLoad  bool   `mapstructure:"sample_host_load" json:"sample_host_load" yaml:"sample_host_load" toml:"sample_host_load"`
}

type Config struct {
	FIFOCapacity int               `mapstructure:"fifo_capacity" json:"fifo_capacity" yaml:"fifo_capacity" toml:"fifo_capacity" validate:"required,gt=0"`
	FlowControl  ConfigFlowControl `mapstructure:"flow_control" json:"flow_control" yaml:"flow_control" toml:"flow_control" validate:"required"`
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

func DefaultConfig() Config {
	return Config{
		FIFOCapacity: 4096,
		FlowControl: ConfigFlowControl{
			High:           2048,
			Low:            512,
			SampleHostLoad: true,
		},
	}
}
