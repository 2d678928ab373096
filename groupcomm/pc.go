package groupcomm

import "sync"

// PC decides, on top of EVS views, which view is primary: a view becomes
// primary iff it contains a majority of the previous primary's members, or
// is the bootstrap view (spec.md §4.2 item 3).
type PC struct {
	cfg ConfigPC

	mu      sync.Mutex
	primary *View // last known primary view, nil before bootstrap
}

func NewPC(cfg ConfigPC) *PC {
	return &PC{cfg: cfg}
}

// Resolve classifies a newly installed EVS view as PRIMARY or NON_PRIMARY,
// applying the majority rule, and returns the (possibly retyped) view.
func (p *PC) Resolve(v View) View {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Type == ViewEmpty {
		return v
	}

	if p.primary == nil {
		if p.cfg.Bootstrap {
			v.Type = ViewPrimary
			cp := v
			p.primary = &cp
			return v
		}

		v.Type = ViewNonPrimary
		return v
	}

	if p.hasMajority(v, *p.primary) {
		v.Type = ViewPrimary
		cp := v
		p.primary = &cp
		return v
	}

	v.Type = ViewNonPrimary
	return v
}

// hasMajority reports whether v contains a majority (by member weight, not
// raw count — pc.weight from spec.md §6) of prev's members.
func (p *PC) hasMajority(v View, prev View) bool {
	if len(prev.Members) == 0 {
		return true
	}

	shared := v.Intersection(prev)

	var sharedWeight, prevWeight int
	for _, m := range shared {
		sharedWeight += weightOf(m)
	}
	for _, m := range prev.Members {
		prevWeight += weightOf(m)
	}

	if prevWeight == 0 {
		return false
	}

	return 2*sharedWeight > prevWeight
}

func weightOf(m Member) int {
	if m.Weight <= 0 {
		return 1
	}
	return m.Weight
}

// LastPrimary returns the most recently installed primary view, if any.
func (p *PC) LastPrimary() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.primary == nil {
		return View{}, false
	}
	return *p.primary, true
}

// ForceBootstrap lets an operator force a fresh bootstrap primary when PC
// cannot otherwise achieve a majority (spec.md §4.2 failure semantics).
func (p *PC) ForceBootstrap(v View) View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v.Type = ViewPrimary
	cp := v
	p.primary = &cp
	return v
}
