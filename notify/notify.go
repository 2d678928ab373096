// Package notify is the consuming half of the replicator's optional event
// side-channel (SPEC_FULL.md L5 "Event notification side-channel"): the
// replicator package publishes view-change, certification-failure, and
// state-transition events on NATS, and a Subscriber here fans them out to
// any number of registered in-process handlers — used by cmd/replicatord's
// watch subcommand and available to any other operator tooling.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nabbar/wsrepl/config"
)

const defaultSubject = "repl.events"

// Event mirrors the wire shape replicator.Event publishes. notify does not
// import the replicator package: the NATS subject and JSON body are the
// contract between the two, not a shared Go type.
type Event struct {
	Type      string    `json:"type"`
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state,omitempty"`
	Seqno     int64     `json:"seqno,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Handler is called for every event received, on the subscription's own
// goroutine; a slow handler delays delivery to every other handler.
type Handler func(Event)

// Subscriber fans events received on "<subject>.*" out to every registered
// Handler.
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription

	mu       sync.RWMutex
	handlers []Handler
}

// Connect dials cfg.NatsURL and subscribes to cfg.Subject (or the default
// "repl.events" prefix), one token per cluster name. Returns ErrorDisabled
// if cfg.Enabled is false.
func Connect(cfg config.NotifyConfig) (*Subscriber, error) {
	if !cfg.Enabled {
		return nil, ErrorDisabled.Error()
	}
	if cfg.NatsURL == "" {
		return nil, ErrorParamsEmpty.Error()
	}

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("wsrepl-notify"))
	if err != nil {
		return nil, ErrorTransportError.Error(err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	s := &Subscriber{nc: nc}

	sub, err := nc.Subscribe(subject+".*", s.onMessage)
	if err != nil {
		nc.Close()
		return nil, ErrorSubscribeFailed.Error(err)
	}
	s.sub = sub

	return s, nil
}

// OnEvent registers a handler invoked for every event received after
// registration. Registering while events are already flowing is safe.
func (s *Subscriber) OnEvent(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	var e Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		return
	}

	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Close unsubscribes and closes the underlying NATS connection.
func (s *Subscriber) Close() error {
	if s == nil {
		return nil
	}
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
