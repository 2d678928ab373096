// Package viper thinly wraps *viper.Viper behind an interface so the rest
// of this module depends on an internal seam rather than the third-party
// type directly, matching the teacher's pattern of wrapping every external
// client (nats, nutsdb, ...) behind a small local interface.
package viper

import (
	"io"

	spfvpr "github.com/spf13/viper"
)

// FuncViper is passed around components/commands needing on-demand access
// to the process-wide Viper instance once it exists.
type FuncViper func() Viper

type Viper interface {
	Viper() *spfvpr.Viper

	Get(key string) interface{}
	GetString(key string) string
	IsSet(key string) bool
	Set(key string, value interface{})

	SetConfigFile(file string)
	SetConfigType(typ string)
	ReadConfig(r io.Reader) error
	ReadInConfig() error

	Unmarshal(out interface{}) error
	UnmarshalKey(key string, out interface{}) error
}

type wrapper struct {
	v *spfvpr.Viper
}

func New(v *spfvpr.Viper) Viper {
	if v == nil {
		v = spfvpr.New()
	}
	return &wrapper{v: v}
}

func (w *wrapper) Viper() *spfvpr.Viper { return w.v }

func (w *wrapper) Get(key string) interface{}     { return w.v.Get(key) }
func (w *wrapper) GetString(key string) string     { return w.v.GetString(key) }
func (w *wrapper) IsSet(key string) bool           { return w.v.IsSet(key) }
func (w *wrapper) Set(key string, value interface{}) { w.v.Set(key, value) }

func (w *wrapper) SetConfigFile(file string) { w.v.SetConfigFile(file) }
func (w *wrapper) SetConfigType(typ string)  { w.v.SetConfigType(typ) }
func (w *wrapper) ReadConfig(r io.Reader) error { return w.v.ReadConfig(r) }
func (w *wrapper) ReadInConfig() error          { return w.v.ReadInConfig() }

func (w *wrapper) Unmarshal(out interface{}) error {
	return w.v.Unmarshal(out)
}

func (w *wrapper) UnmarshalKey(key string, out interface{}) error {
	return w.v.UnmarshalKey(key, out)
}
