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

// Package httpserver wraps a single net/http server with optional TLS and
// HTTP/2, lifecycle-managed through this module's start/stop state machine.
// It backs the monitor's /status and /metrics listeners and a donor's SST
// manifest endpoint.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/http2"

	srvtps "github.com/nabbar/wsrepl/httpserver/types"
	liblog "github.com/nabbar/wsrepl/logger"
	librun "github.com/nabbar/wsrepl/runner/startStop"
)

// Server manages one HTTP(S) listener. All operations are thread-safe.
type Server interface {
	librun.StartStop

	GetName() string
	GetBindable() string
	GetExpose() string
	IsDisable() bool
	IsTLS() bool

	// Handler registers the function producing the handler to serve.
	// Re-registering while running takes effect on the next Restart.
	Handler(h srvtps.FuncHandler)

	GetConfig() Config
	SetConfig(cfg Config) error
}

type srv struct {
	librun.StartStop

	mu sync.RWMutex

	cfg Config
	log liblog.FuncLog
	hdl srvtps.FuncHandler

	htp *http.Server
}

// New validates cfg and builds a Server ready to Start. defLog is used
// when non-nil; otherwise the package-wide default logger is used.
func New(cfg Config, defLog liblog.FuncLog) (Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &srv{cfg: cfg, log: defLog}
	o.StartStop = librun.New(o.doStart, o.doStop)
	return o, nil
}

func (o *srv) logger() liblog.Logger {
	o.mu.RLock()
	fn := o.log
	o.mu.RUnlock()

	if fn != nil {
		if l := fn(); l != nil {
			return l
		}
	}
	return liblog.GetDefault()
}

func (o *srv) GetConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *srv) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	return nil
}

func (o *srv) GetName() string {
	return o.GetConfig().GetName()
}

func (o *srv) GetBindable() string {
	if u := o.GetConfig().GetListen(); u != nil {
		return u.Host
	}
	return ""
}

func (o *srv) GetExpose() string {
	if u := o.GetConfig().GetExpose(); u != nil {
		return u.String()
	}
	return ""
}

func (o *srv) IsDisable() bool {
	return o.GetConfig().Disabled
}

func (o *srv) IsTLS() bool {
	return o.GetConfig().IsTLS()
}

func (o *srv) Handler(h srvtps.FuncHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hdl = h
}

func (o *srv) handler() http.Handler {
	o.mu.RLock()
	h := o.hdl
	o.mu.RUnlock()

	if h == nil {
		return srvtps.NewBadHandler()
	}

	m := h()
	if len(m) == 0 {
		return srvtps.NewBadHandler()
	}

	key := o.GetConfig().GetHandlerKey()
	if key == "" {
		key = srvtps.HandlerDefault
	}

	if v, ok := m[key]; ok && v != nil {
		return v
	}
	if v, ok := m[srvtps.HandlerDefault]; ok && v != nil {
		return v
	}

	for _, v := range m {
		if v != nil {
			return v
		}
	}
	return srvtps.NewBadHandler()
}

func (o *srv) doStart(ctx context.Context) error {
	cfg := o.GetConfig()

	if cfg.Disabled {
		return nil
	}

	ssl, err := cfg.GetTLS()
	if err != nil {
		return err
	}
	if cfg.TLSMandatory && (ssl == nil || ssl.LenCertificatePair() == 0) {
		return ErrorServerValidate.Error(errors.New("tls is mandatory but no certificate pair is configured"))
	}

	h := &http.Server{
		Addr:              cfg.GetListen().Host,
		Handler:           o.handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if ssl != nil && ssl.LenCertificatePair() > 0 {
		h.TLSConfig = ssl.TlsConfig("")
	}

	h2 := &http2.Server{
		MaxConcurrentStreams:         cfg.MaxConcurrentStreams,
		PermitProhibitedCipherSuites: cfg.PermitProhibitedCipherSuites,
	}
	if e := http2.ConfigureServer(h, h2); e != nil {
		return ErrorHTTP2Configure.Error(e)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	h.BaseContext = func(net.Listener) context.Context { return listenCtx }

	o.mu.Lock()
	o.htp = h
	o.mu.Unlock()

	go func() {
		defer cancel()

		var serveErr error
		if h.TLSConfig != nil {
			o.logger().Info("http server starting with tls", o.GetBindable())
			serveErr = h.ListenAndServeTLS("", "")
		} else {
			o.logger().Info("http server starting", o.GetBindable())
			serveErr = h.ListenAndServe()
		}

		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			o.logger().Error("http server stopped with error", map[string]interface{}{"bind": o.GetBindable(), "error": serveErr})
		}
	}()

	return nil
}

func (o *srv) doStop(ctx context.Context) error {
	o.mu.Lock()
	h := o.htp
	o.htp = nil
	o.mu.Unlock()

	if h == nil {
		return nil
	}

	return h.Shutdown(ctx)
}
