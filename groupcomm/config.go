package groupcomm

import (
	"time"

	validator "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/wsrepl/errors"
)

// ConfigGMCast carries the recognised gmcast.* configuration keys of
// spec.md §6, plus the gossip/suspect-eviction additions of SPEC_FULL.md.
type ConfigGMCast struct {
	Group           string        `mapstructure:"group" json:"group" yaml:"group" toml:"group" validate:"required"`
	Seeds           []string      `mapstructure:"seeds" json:"seeds" yaml:"seeds" toml:"seeds" validate:"required,min=1,dive,required"`
	GossipInterval  time.Duration `mapstructure:"gossip_interval" json:"gossip_interval" yaml:"gossip_interval" toml:"gossip_interval" validate:"gt=0"`
	SuspectTimeout  time.Duration `mapstructure:"suspect_timeout" json:"suspect_timeout" yaml:"suspect_timeout" toml:"suspect_timeout" validate:"gt=0"`
	WireVersion     string        `mapstructure:"wire_version" json:"wire_version" yaml:"wire_version" toml:"wire_version" validate:"required"`
	VersionAccepted string        `mapstructure:"version_accepted" json:"version_accepted" yaml:"version_accepted" toml:"version_accepted" validate:"required"`

	// DedupCacheSize bounds the LRU of (source, wire seq) pairs GroupComm
	// remembers to drop a redelivered payload frame before it ever
	// reaches EVS.Receive — NATS redelivery or a gossip retransmission
	// must not be double-counted into a second, spurious per-source
	// sequence number (SPEC_FULL.md addition, L1 anti-replay).
	DedupCacheSize int `mapstructure:"dedup_cache_size" json:"dedup_cache_size" yaml:"dedup_cache_size" toml:"dedup_cache_size" validate:"required,gt=0"`
}

// ConfigEVS carries the recognised evs.* configuration keys of spec.md §6.
type ConfigEVS struct {
	SendWindow        uint32        `mapstructure:"send_window" json:"send_window" yaml:"send_window" toml:"send_window" validate:"gt=0"`
	UserSendWindow    uint32        `mapstructure:"user_send_window" json:"user_send_window" yaml:"user_send_window" toml:"user_send_window" validate:"gt=0"`
	JoinRetransPeriod time.Duration `mapstructure:"join_retrans_period" json:"join_retrans_period" yaml:"join_retrans_period" toml:"join_retrans_period" validate:"gt=0"`
}

// ConfigPC carries the recognised pc.* configuration keys of spec.md §6.
type ConfigPC struct {
	Bootstrap bool `mapstructure:"bootstrap" json:"bootstrap" yaml:"bootstrap" toml:"bootstrap"`
	Weight    int  `mapstructure:"weight" json:"weight" yaml:"weight" toml:"weight" validate:"gte=0"`
}

type Config struct {
	Node   NodeIdentity `mapstructure:"node" json:"node" yaml:"node" toml:"node" validate:"required"`
	GMCast ConfigGMCast `mapstructure:"gmcast" json:"gmcast" yaml:"gmcast" toml:"gmcast" validate:"required"`
	EVS    ConfigEVS    `mapstructure:"evs" json:"evs" yaml:"evs" toml:"evs" validate:"required"`
	PC     ConfigPC     `mapstructure:"pc" json:"pc" yaml:"pc" toml:"pc" validate:"required"`
}

// NodeIdentity is how a node reaches itself and its peers over NATS, the
// transport GMCast fans its broadcast over.
type NodeIdentity struct {
	Addr    string `mapstructure:"addr" json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	NatsURL string `mapstructure:"nats_url" json:"nats_url" yaml:"nats_url" toml:"nats_url" validate:"required"`
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
		GMCast: ConfigGMCast{
			GossipInterval:  time.Second,
			SuspectTimeout:  3 * time.Second,
			WireVersion:     "1.0.0",
			VersionAccepted: ">= 1.0.0, < 2.0.0",
			DedupCacheSize:  4096,
		},
		EVS: ConfigEVS{
			SendWindow:        4096,
			UserSendWindow:    2048,
			JoinRetransPeriod: 500 * time.Millisecond,
		},
		PC: ConfigPC{
			Weight: 1,
		},
	}
}
