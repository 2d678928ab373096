/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	validator "github.com/go-playground/validator/v10"

	libtls "github.com/nabbar/wsrepl/certificates"
	liberr "github.com/nabbar/wsrepl/errors"
)

// Config describes one HTTP(S) listener: the monitor's /status and
// /metrics endpoints, or a donor's SST transfer endpoint. Multiple
// Config values can be validated and started independently.
type Config struct {
	getTLSDefault    func() libtls.TLSConfig
	getParentContext func() context.Context

	// Name identifies this server in logs. Defaults to Listen if empty.
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name"`

	// Listen is the local bind address (host:port).
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required,hostname_port"`

	// Expose is the externally reachable URL for this server, used in
	// status responses. Defaults to a URL derived from Listen.
	Expose string `mapstructure:"expose" json:"expose" yaml:"expose" toml:"expose" validate:"omitempty,url"`

	// Disabled skips starting this server without requiring the caller
	// to drop its configuration entirely.
	Disabled bool `mapstructure:"disabled" json:"disabled" yaml:"disabled" toml:"disabled"`

	// HandlerKey selects which named handler this server serves, when
	// the owning component registers more than one (e.g. "status" vs
	// "metrics").
	HandlerKey string `mapstructure:"handler_key" json:"handler_key" yaml:"handler_key" toml:"handler_key"`

	// TLSMandatory requires a valid TLS configuration before Listen
	// will start the server.
	TLSMandatory bool `mapstructure:"tls_mandatory" json:"tls_mandatory" yaml:"tls_mandatory" toml:"tls_mandatory"`

	// TLS configures the certificate pairs served by this listener. An
	// empty value means plain HTTP unless TLSMandatory is set.
	TLS libtls.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`

	ReadTimeout       time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" json:"read_header_timeout" yaml:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes" json:"max_header_bytes" yaml:"max_header_bytes" toml:"max_header_bytes"`

	MaxConcurrentStreams         uint32 `mapstructure:"max_concurrent_streams" json:"max_concurrent_streams" yaml:"max_concurrent_streams" toml:"max_concurrent_streams"`
	PermitProhibitedCipherSuites bool   `mapstructure:"permit_prohibited_cipher_suites" json:"permit_prohibited_cipher_suites" yaml:"permit_prohibited_cipher_suites" toml:"permit_prohibited_cipher_suites"`
}

// SetDefaultTLS registers a fallback TLS configuration inherited when
// this Config's own TLS block does not set InheritDefault.
func (c *Config) SetDefaultTLS(f func() libtls.TLSConfig) {
	c.getTLSDefault = f
}

// SetParentContext registers the context this server's listener derives
// its lifetime from.
func (c *Config) SetParentContext(f func() context.Context) {
	c.getParentContext = f
}

func (c Config) getContext() context.Context {
	if c.getParentContext != nil {
		if ctx := c.getParentContext(); ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// GetTLS resolves this Config's TLS block against the registered
// default, returning a ready-to-use TLSConfig.
func (c Config) GetTLS() (libtls.TLSConfig, liberr.Error) {
	var def libtls.TLSConfig
	if c.getTLSDefault != nil {
		def = c.getTLSDefault()
	}
	return c.TLS.NewFrom(def)
}

func (c Config) IsTLS() bool {
	ssl, err := c.GetTLS()
	return err == nil && ssl != nil && ssl.LenCertificatePair() > 0
}

func (c Config) GetListen() *url.URL {
	if c.Listen == "" {
		return nil
	}
	if u, err := url.Parse(c.Listen); err == nil && u.Host != "" {
		return u
	}
	if host, port, err := net.SplitHostPort(c.Listen); err == nil {
		return &url.URL{Host: fmt.Sprintf("%s:%s", host, port)}
	}
	return nil
}

func (c Config) GetExpose() *url.URL {
	if c.Expose != "" {
		if u, err := url.Parse(c.Expose); err == nil {
			return u
		}
	}

	u := c.GetListen()
	if u == nil {
		return nil
	}

	if c.IsTLS() {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	return u
}

func (c Config) GetName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Listen
}

func (c Config) GetHandlerKey() string {
	return c.HandlerKey
}

func (c Config) Validate() liberr.Error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	if e, ok := err.(*validator.InvalidValidationError); ok {
		return ErrorServerValidate.Error(e)
	}

	var parents []error
	for _, e := range err.(validator.ValidationErrors) {
		//nolint goerr113
		parents = append(parents, fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.Field(), e.ActualTag()))
	}

	out := ErrorServerValidate.Error(parents...)
	if out.HasParent() {
		return out
	}
	return nil
}
