// Package monitor exposes a replicator node's state over HTTP: a JSON
// /status endpoint, a Prometheus /metrics endpoint, and the donor side of
// the SST manifest handshake the replicator package's joiner client
// consumes (spec.md §4.6 "Donating", SPEC_FULL.md L5 "Monitor module").
package monitor

import (
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/wsrepl/config"
	"github.com/nabbar/wsrepl/gcs"
	"github.com/nabbar/wsrepl/groupcomm"
	libsrv "github.com/nabbar/wsrepl/httpserver"
	srvtps "github.com/nabbar/wsrepl/httpserver/types"
	liblog "github.com/nabbar/wsrepl/logger"
	"github.com/nabbar/wsrepl/replicator"
)

const (
	PathStatus = "/status"

	defaultListen = "127.0.0.1:0"
)

// NodeStatus is the subset of *replicator.Node this package observes.
// *replicator.Node satisfies it; tests may supply a stub instead.
type NodeStatus interface {
	State() replicator.State
	Self() groupcomm.MemberUUID
	CurrentView() groupcomm.View
	Checkpoint() (gcs.SEQNO, string, error)
}

// Monitor wraps an httpserver.Server and registers a gin router carrying
// the status, manifest and metrics routes. Embedding the Server interface
// promotes Start/Stop/IsRunning so a Monitor can be driven the same way
// as any other component of the node.
type Monitor struct {
	libsrv.Server

	node         NodeStatus
	snapshot     replicator.SnapshotFunc
	manifestPath string

	mu           sync.Mutex
	snapshotPath string

	reg        *prometheus.Registry
	gaugeState prometheus.Gauge
	gaugeView  prometheus.Gauge
}

// New builds a Monitor bound to cfg.Listen. manifestPath should match the
// value other nodes carry as their replicator.SSTConfig.ManifestPath, so
// a joiner can find this node's donor endpoint. snapshot may be nil on a
// node that never acts as an SST donor, in which case the manifest route
// answers 503.
func New(cfg config.MonitorConfig, manifestPath string, node NodeStatus, snapshot replicator.SnapshotFunc, defLog liblog.FuncLog) (*Monitor, error) {
	if node == nil {
		return nil, ErrorParamsEmpty.Error()
	}

	if manifestPath == "" {
		manifestPath = "/sst"
	}

	listen := cfg.Listen
	if listen == "" {
		listen = defaultListen
	}

	srv, err := libsrv.New(libsrv.Config{
		Name:     "monitor",
		Listen:   listen,
		Disabled: !cfg.Enabled,
	}, defLog)
	if err != nil {
		return nil, ErrorServerInit.Error(err)
	}

	reg := prometheus.NewRegistry()

	gaugeState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsrepl",
		Subsystem: "replicator",
		Name:      "node_state",
		Help:      "Position in the node state machine: 0=closed 1=open 2=connected 3=joiner 4=donor 5=joined 6=synced.",
	})
	gaugeView := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsrepl",
		Subsystem: "replicator",
		Name:      "view_members",
		Help:      "Member count of the last delivered group-comm view.",
	})
	reg.MustRegister(gaugeState, gaugeView, prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}), prometheus.NewGoCollector())

	m := &Monitor{
		node:         node,
		snapshot:     snapshot,
		manifestPath: manifestPath,
		reg:          reg,
		gaugeState:   gaugeState,
		gaugeView:    gaugeView,
	}
	m.Server = srv
	m.Server.Handler(m.handlers)

	return m, nil
}

func (m *Monitor) handlers() map[string]http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(PathStatus, m.handleStatus)
	r.GET(m.manifestPath, m.handleManifest)
	r.GET(m.manifestPath+"/data", m.handleSnapshotData)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})))

	return map[string]http.Handler{srvtps.HandlerDefault: r}
}

// handleStatus reports the fields spec.md §4.3/§5 names as observable
// node state: the state machine position, the last delivered view, and
// the last durable checkpoint.
func (m *Monitor) handleStatus(c *gin.Context) {
	st := m.node.State()
	m.gaugeState.Set(float64(st))

	view := m.node.CurrentView()
	m.gaugeView.Set(float64(len(view.Members)))

	seqno, stateID, _ := m.node.Checkpoint()

	c.JSON(http.StatusOK, gin.H{
		"self":                m.node.Self().String(),
		"state":               st.String(),
		"can_originate":       st.CanOriginate(),
		"view_id":             view.ID,
		"view_type":           view.Type.String(),
		"view_members":        len(view.Members),
		"checkpoint_seqno":    int64(seqno),
		"checkpoint_state_id": stateID,
	})
}

// handleManifest is the donor side of the SST handshake replicator.sst.go
// drives from the joiner: it triggers the registered SnapshotFunc and
// publishes where the resulting bytes can be fetched.
func (m *Monitor) handleManifest(c *gin.Context) {
	if m.snapshot == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	path, err := m.snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorSnapshotFailed.Error(err).Error()})
		return
	}

	m.mu.Lock()
	m.snapshotPath = path
	m.mu.Unlock()

	seqno, stateID, _ := m.node.Checkpoint()

	c.JSON(http.StatusOK, gin.H{
		"seqno":        int64(seqno),
		"state_id":     stateID,
		"snapshot_url": m.Server.GetExpose() + m.manifestPath + "/data",
	})
}

func (m *Monitor) handleSnapshotData(c *gin.Context) {
	m.mu.Lock()
	path := m.snapshotPath
	m.mu.Unlock()

	if path == "" {
		c.Status(http.StatusNotFound)
		return
	}

	if _, err := os.Stat(path); err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.File(path)
}
