// Package replicator implements the node state machine (L5): the public
// connect/replicate/commit/close API exposed to the database, joining and
// donating choreography, and the SST-then-IST catch-up path (spec.md §4.6).
package replicator

import (
	"time"

	validator "github.com/go-playground/validator/v10"

	liberr "github.com/nabbar/wsrepl/errors"
)

// CommitOrder selects how commit() is sequenced against concurrently
// certified remote actions (SPEC_FULL.md ambient addition, "repl.commit_order").
type CommitOrder string

const (
	CommitOrderOptimistic CommitOrder = "optimistic"
	CommitOrderOOOC       CommitOrder = "ooc"
)

// Config carries the recognised repl.* configuration keys (SPEC_FULL.md
// ambient stack additions layered over spec.md §4.6/§6).
type Config struct {
	// Name identifies this node in logs, status output, and published
	// events. Defaults to the underlying groupcomm node address.
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name"`

	CommitOrder        CommitOrder   `mapstructure:"commit_order" json:"commit_order" yaml:"commit_order" toml:"commit_order" validate:"required,oneof=optimistic ooc"`
	CausalReadTimeout  time.Duration `mapstructure:"causal_read_timeout" json:"causal_read_timeout" yaml:"causal_read_timeout" toml:"causal_read_timeout" validate:"gte=0"`
	MaxWriteSetSize    int           `mapstructure:"max_write_set_size" json:"max_write_set_size" yaml:"max_write_set_size" toml:"max_write_set_size" validate:"required,gt=0"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout" validate:"gt=0"`

	// ApplyConcurrency bounds how many remote write-sets may run the
	// embedder's ApplyFunc concurrently (spec.md §4.5/§4.6: certification
	// stays strictly seqno-ordered on a single thread, but applying an
	// already-certified, non-conflicting write-set to the database has no
	// such requirement, so it is the one stage of this pipeline safe to
	// parallelize). Commit bookkeeping is still released in seqno order
	// regardless of how apply calls overlap.
	ApplyConcurrency int `mapstructure:"apply_concurrency" json:"apply_concurrency" yaml:"apply_concurrency" toml:"apply_concurrency" validate:"required,gt=0"`

	SST SSTConfig `mapstructure:"sst" json:"sst" yaml:"sst" toml:"sst" validate:"required"`
}

// SSTConfig controls the joiner's fetch of the donor's snapshot manifest
// over HTTP (SPEC_FULL.md L5 addition: "the donor exposes its snapshot
// manifest over the Monitor module's HTTP endpoint").
type SSTConfig struct {
	ManifestPath  string        `mapstructure:"manifest_path" json:"manifest_path" yaml:"manifest_path" toml:"manifest_path" validate:"required"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout" yaml:"fetch_timeout" toml:"fetch_timeout" validate:"gt=0"`
	RetryMax      int           `mapstructure:"retry_max" json:"retry_max" yaml:"retry_max" toml:"retry_max" validate:"gte=0"`
	RetryWaitMin  time.Duration `mapstructure:"retry_wait_min" json:"retry_wait_min" yaml:"retry_wait_min" toml:"retry_wait_min" validate:"gt=0"`
	RetryWaitMax  time.Duration `mapstructure:"retry_wait_max" json:"retry_wait_max" yaml:"retry_wait_max" toml:"retry_wait_max" validate:"gt=0"`
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
		CommitOrder:       CommitOrderOptimistic,
		CausalReadTimeout: 5 * time.Second,
		MaxWriteSetSize:   64 * 1024 * 1024,
		ConnectTimeout:    30 * time.Second,
		ApplyConcurrency:  8,
		SST: SSTConfig{
			ManifestPath: "/sst",
			FetchTimeout: 2 * time.Minute,
			RetryMax:     5,
			RetryWaitMin: 200 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
		},
	}
}
