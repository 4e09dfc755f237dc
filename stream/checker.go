package stream

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/sim"
)

// Checker samples an endpoint on every commit and records handshake
// violations: a producer that changes its payload or markers, or drops
// valid, while a beat is offered but not yet accepted.
//
// Violations are caller errors; the components in this package do not
// guard against them.
type Checker struct {
	name       string
	ep         *Endpoint
	circuit    *sim.Circuit
	prev       Beat
	violations []error
	stalled    bool
}

func NewChecker(name string, ep *Endpoint) *Checker {
	return &Checker{name: name, ep: ep}
}

func (c *Checker) Attach(circuit *sim.Circuit) { c.circuit = circuit }
func (c *Checker) Eval() bool                  { return false }

func (c *Checker) cycle() uint64 {
	if c.circuit == nil {
		return 0
	}
	return c.circuit.Cycle()
}

func (c *Checker) Commit() {
	cur := c.ep.Beat()
	if c.stalled {
		var detail string
		switch {
		case !cur.Valid:
			detail = "valid dropped before the beat was accepted"
		case !cur.Same(c.prev):
			detail = "beat changed while stalled: " + c.prev.Payload.String() + " -> " + cur.Payload.String()
		}
		if detail != "" {
			err := errors.ProtocolViolation([]string{c.name}, c.cycle(), detail)
			c.violations = append(c.violations, err)
			Logger().Warn("stream protocol violation",
				zap.String("endpoint", c.name),
				zap.Uint64("cycle", c.cycle()),
				zap.String("detail", detail))
		}
	}
	c.stalled = cur.Valid && !c.ep.Ready()
	c.prev = cur
}

func (c *Checker) Reset() {
	c.stalled = false
	c.prev = Beat{}
}

// Violations returns the violations seen so far, oldest first.
func (c *Checker) Violations() []error { return c.violations }

// Probe counts the beats transferred on an endpoint and optionally keeps
// them. Transfers are also reported to the circuit metrics.
type Probe struct {
	name    string
	ep      *Endpoint
	metrics *sim.Metrics
	beats   []Beat
	count   int
	keep    bool
}

// NewProbe observes ep. With keep set, every transferred beat is retained.
func NewProbe(name string, ep *Endpoint, keep bool) *Probe {
	return &Probe{name: name, ep: ep, keep: keep}
}

func (p *Probe) Attach(c *sim.Circuit) { p.metrics = c.Metrics() }
func (p *Probe) Eval() bool            { return false }
func (p *Probe) Count() int            { return p.count }
func (p *Probe) Beats() []Beat         { return p.beats }

func (p *Probe) Commit() {
	if !p.ep.Fired() {
		return
	}
	p.count++
	p.metrics.Transfer(p.name)
	if p.keep {
		p.beats = append(p.beats, p.ep.Beat())
	}
}

func (p *Probe) Reset() {
	p.count = 0
	p.beats = nil
}
