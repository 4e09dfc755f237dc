package sim

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
)

// DefaultDomain is the clock domain used by Add.
const DefaultDomain = "sys"

// Component is one piece of synchronous logic.
//
// Eval recomputes combinational outputs from registered state and current
// inputs and reports whether any output changed. Commit latches the next
// registered state from the settled signals; it must not drive signals.
type Component interface {
	Eval() bool
	Commit()
}

// Attacher is implemented by components that need the circuit they are added to.
type Attacher interface {
	Attach(c *Circuit)
}

// Resetter is implemented by components with registered state.
type Resetter interface {
	Reset()
}

// Group evaluates and commits a fixed set of components as one.
type Group []Component

func (g Group) Eval() bool {
	changed := false
	for _, c := range g {
		if c.Eval() {
			changed = true
		}
	}
	return changed
}

func (g Group) Commit() {
	for _, c := range g {
		c.Commit()
	}
}

func (g Group) Reset() {
	for _, c := range g {
		if r, ok := c.(Resetter); ok {
			r.Reset()
		}
	}
}

// Set assigns v to *p and reports whether the value changed.
func Set[T comparable](p *T, v T) bool {
	if *p == v {
		return false
	}
	*p = v
	return true
}

// Domain is a clock domain: its components commit on ticks where
// (cycle - Phase) is a non-negative multiple of Period.
type Domain struct {
	Name       string
	components []Component
	Period     int
	Phase      int
}

func (d *Domain) edge(cycle uint64) bool {
	if cycle < uint64(d.Phase) {
		return false
	}
	return (cycle-uint64(d.Phase))%uint64(d.Period) == 0
}

// Option configures a Circuit.
type Option func(*Circuit)

// WithMetrics exports circuit activity through m.
func WithMetrics(m *Metrics) Option {
	return func(c *Circuit) {
		c.metrics = m
	}
}

// Circuit owns a set of components and advances them tick by tick.
type Circuit struct {
	byName     map[string]*Domain
	metrics    *Metrics
	log        *zap.Logger
	domains    []*Domain
	components []Component
	hooks      []func(cycle uint64)
	cycle      uint64
}

func NewCircuit(opts ...Option) *Circuit {
	c := &Circuit{
		byName: make(map[string]*Domain),
		log:    Logger(),
	}
	sys := &Domain{Name: DefaultDomain, Period: 1}
	c.domains = append(c.domains, sys)
	c.byName[sys.Name] = sys
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddDomain declares a clock domain with an edge every period ticks,
// starting at tick phase.
func (c *Circuit) AddDomain(name string, period, phase int) error {
	if _, exists := c.byName[name]; exists {
		return errors.DuplicateName([]string{"domain"}, name)
	}
	if period < 1 {
		return errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path("domain", name).
			Detail("period %d must be at least 1", period).
			Build()
	}
	if phase < 0 {
		return errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path("domain", name).
			Detail("phase %d must not be negative", phase).
			Build()
	}
	d := &Domain{Name: name, Period: period, Phase: phase}
	c.domains = append(c.domains, d)
	c.byName[name] = d
	c.log.Debug("clock domain added",
		zap.String("domain", name),
		zap.Int("period", period),
		zap.Int("phase", phase))
	return nil
}

// Domain returns a declared clock domain.
func (c *Circuit) Domain(name string) (*Domain, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Add places components in the default domain.
func (c *Circuit) Add(components ...Component) {
	_ = c.AddTo(DefaultDomain, components...)
}

// AddTo places components in the named domain.
func (c *Circuit) AddTo(domain string, components ...Component) error {
	d, ok := c.byName[domain]
	if !ok {
		return errors.NotFound(errors.PhaseElaborate, "clock domain", domain)
	}
	for _, comp := range components {
		d.components = append(d.components, comp)
		c.components = append(c.components, comp)
		if a, ok := comp.(Attacher); ok {
			a.Attach(c)
		}
	}
	return nil
}

// OnCommit registers fn to run after settling and before the commit of
// every tick. Hooks observe the settled signals of the tick.
func (c *Circuit) OnCommit(fn func(cycle uint64)) {
	c.hooks = append(c.hooks, fn)
}

// Cycle returns the number of ticks run so far.
func (c *Circuit) Cycle() uint64 {
	return c.cycle
}

// Edge reports whether the named domain commits on the current tick.
func (c *Circuit) Edge(domain string) bool {
	d, ok := c.byName[domain]
	return ok && d.edge(c.cycle)
}

// Metrics returns the circuit's metrics, or nil.
func (c *Circuit) Metrics() *Metrics {
	return c.metrics
}

// Settle evaluates combinational logic until no signal changes.
func (c *Circuit) Settle() error {
	limit := 2*len(c.components) + 4
	for pass := 1; pass <= limit; pass++ {
		changed := false
		for _, comp := range c.components {
			if comp.Eval() {
				changed = true
			}
		}
		if !changed {
			c.metrics.observePasses(pass)
			return nil
		}
	}
	err := errors.CombinationalLoop(c.cycle, limit)
	c.log.Error("combinational logic did not settle",
		zap.Uint64("cycle", c.cycle),
		zap.Int("passes", limit))
	return err
}

// Tick settles, commits every domain with an edge on this cycle, advances
// the cycle counter and settles again so outputs reflect the new state.
func (c *Circuit) Tick() error {
	if err := c.Settle(); err != nil {
		return err
	}
	for _, fn := range c.hooks {
		fn(c.cycle)
	}
	for _, d := range c.domains {
		if !d.edge(c.cycle) {
			continue
		}
		for _, comp := range d.components {
			comp.Commit()
		}
	}
	c.cycle++
	c.metrics.tick()
	return c.Settle()
}

// Run advances n ticks.
func (c *Circuit) Run(n int) error {
	for range n {
		if err := c.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntil ticks until cond holds on settled signals, or fails after limit ticks.
func (c *Circuit) RunUntil(cond func() bool, limit int) error {
	if err := c.Settle(); err != nil {
		return err
	}
	for range limit {
		if cond() {
			return nil
		}
		if err := c.Tick(); err != nil {
			return err
		}
	}
	if cond() {
		return nil
	}
	return errors.Timeout(c.cycle, limit)
}

// Reset returns every component with registered state to its initial state.
func (c *Circuit) Reset() {
	for _, comp := range c.components {
		if r, ok := comp.(Resetter); ok {
			r.Reset()
		}
	}
	c.log.Debug("circuit reset", zap.Uint64("cycle", c.cycle))
}
