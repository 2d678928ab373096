package gcs

import (
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// FlowControl tracks each member's advertised backlog and decides whether
// local origination should be paused. Backlog sampling factors in host
// memory/CPU pressure, not only queue depth (SPEC_FULL.md addition to
// spec.md §4.3): a node under host pressure advertises a worse backlog even
// with a short FIFO.
type FlowControl struct {
	cfg ConfigFlowControl

	mu      sync.Mutex
	backlog map[string]uint64

	paused int32
}

func NewFlowControl(cfg ConfigFlowControl) *FlowControl {
	return &FlowControl{
		cfg:     cfg,
		backlog: make(map[string]uint64),
	}
}

// LocalBacklog computes this node's advertised backlog value: the FIFO
// depth plus a pressure-scaled penalty when host sampling is enabled.
func (fc *FlowControl) LocalBacklog(fifo *FIFO) uint64 {
	depth := uint64(fifo.Len())

	if !fc.cfg.SampleHostLoad {
		return depth
	}

	penalty := fc.hostPressurePenalty()
	return depth + penalty
}

func (fc *FlowControl) hostPressurePenalty() uint64 {
	var penalty uint64

	if vm, err := mem.VirtualMemory(); err == nil && vm.UsedPercent > 85 {
		penalty += uint64((vm.UsedPercent - 85) * 10)
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 && pct[0] > 90 {
		penalty += uint64((pct[0] - 90) * 10)
	}

	return penalty
}

// Observe records a member's advertised backlog (relayed over the same
// total-order channel as an action, so it is trivially consistent across
// members) and recomputes whether a pause is in effect.
func (fc *FlowControl) Observe(member string, backlog uint64) {
	fc.mu.Lock()
	fc.backlog[member] = backlog
	worst := uint64(0)
	for _, b := range fc.backlog {
		if b > worst {
			worst = b
		}
	}
	fc.mu.Unlock()

	switch {
	case worst > fc.cfg.High:
		atomic.StoreInt32(&fc.paused, 1)
	case worst <= fc.cfg.Low:
		atomic.StoreInt32(&fc.paused, 0)
	}
}

// Paused reports whether local origination is currently paused. This is
// surfaced to callers as backpressure, never as an error (spec.md §7
// propagation policy).
func (fc *FlowControl) Paused() bool {
	return atomic.LoadInt32(&fc.paused) == 1
}
