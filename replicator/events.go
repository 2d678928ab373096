package replicator

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType classifies an operator-visible replication event published on
// the optional NATS side-channel (SPEC_FULL.md L5 addition: monitoring
// tooling can subscribe without polling the Monitor module's HTTP status
// endpoint).
type EventType string

const (
	EventViewChange      EventType = "view_change"
	EventCertFailed      EventType = "cert_failed"
	EventStateTransition EventType = "state_transition"
)

// Event is the JSON payload published for every notable replicator
// occurrence.
type Event struct {
	Type      EventType `json:"type"`
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state,omitempty"`
	Seqno     int64     `json:"seqno,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// EventPublisher fans replicator events out over NATS on
// "repl.events.<cluster_name>". It is optional: a Node with no publisher
// attached simply skips emission.
type EventPublisher struct {
	nc      *nats.Conn
	subject string
	name    string
}

func NewEventPublisher(natsURL, clusterName, nodeName string) (*EventPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("replicator/"+nodeName))
	if err != nil {
		return nil, ErrorTransportError.Error(err)
	}

	return &EventPublisher{nc: nc, subject: "repl.events." + clusterName, name: nodeName}, nil
}

func (p *EventPublisher) publish(e Event) {
	if p == nil || p.nc == nil {
		return
	}

	e.Node = p.name
	e.Timestamp = time.Now()

	b, err := json.Marshal(e)
	if err != nil {
		return
	}

	_ = p.nc.Publish(p.subject, b)
}

func (p *EventPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// SetEventPublisher attaches the optional NATS event side-channel.
func (n *Node) SetEventPublisher(p *EventPublisher) {
	n.mu.Lock()
	n.events = p
	n.mu.Unlock()
}

func (n *Node) emit(e Event) {
	n.mu.Lock()
	p := n.events
	n.mu.Unlock()

	p.publish(e)
}
