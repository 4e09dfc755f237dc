// Package streamtest provides stream producers and consumers for tests.
package streamtest

import (
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/stream"
)

// Pattern decides, per tick, whether a driver offers data or a monitor
// accepts it. A nil Pattern always does.
type Pattern func(tick int) bool

// Every returns a pattern that holds on one tick out of n.
func Every(n int) Pattern {
	return func(tick int) bool { return tick%n == 0 }
}

// Stall returns a pattern that holds except during [from, from+k).
func Stall(from, k int) Pattern {
	return func(tick int) bool { return tick < from || tick >= from+k }
}

// Driver feeds queued beats into its Source endpoint, obeying the
// handshake: an offered beat is held until accepted.
type Driver struct {
	Source  *stream.Endpoint
	desc    *layout.Layout
	queue   []stream.Beat
	pattern Pattern
	tick    int
	idle    bool
	sent    int
}

func NewDriver(desc *layout.Layout) *Driver {
	return &Driver{Source: stream.NewEndpoint(desc), desc: desc}
}

// WithPattern gates when new beats are offered.
func (d *Driver) WithPattern(p Pattern) *Driver {
	d.pattern = p
	d.idle = p != nil && !p(0)
	return d
}

// Push queues beats. Their Valid flag is ignored.
func (d *Driver) Push(beats ...stream.Beat) {
	d.queue = append(d.queue, beats...)
}

// PushValues queues one beat per value, each value filling the payload
// from bit 0.
func (d *Driver) PushValues(values ...uint64) {
	for _, v := range values {
		d.Push(stream.Beat{Payload: bitvec.FromUint64(d.desc.Width(), v)})
	}
}

// PushPacket queues values as one packet: start marked on the first beat
// and end on the last.
func (d *Driver) PushPacket(values ...uint64) {
	for i, v := range values {
		d.Push(stream.Beat{
			Payload: bitvec.FromUint64(d.desc.Width(), v),
			SOP:     i == 0,
			EOP:     i == len(values)-1,
		})
	}
}

// Pending returns the number of beats not yet accepted.
func (d *Driver) Pending() int { return len(d.queue) }

// Sent returns the number of beats accepted so far.
func (d *Driver) Sent() int { return d.sent }

func (d *Driver) Eval() bool {
	if d.idle || len(d.queue) == 0 {
		return d.Source.Drive(stream.Beat{Payload: d.desc.Zero()})
	}
	b := d.queue[0]
	b.Valid = true
	return d.Source.Drive(b)
}

func (d *Driver) Commit() {
	offered := d.Source.Valid()
	if d.Source.Fired() {
		d.queue = d.queue[1:]
		d.sent++
		offered = false
	}
	d.tick++
	if offered {
		return
	}
	d.idle = d.pattern != nil && !d.pattern(d.tick)
}

func (d *Driver) Reset() {
	d.queue = nil
	d.tick, d.sent = 0, 0
	d.idle = d.pattern != nil && !d.pattern(0)
}

// Monitor consumes beats from its Sink endpoint and records them.
type Monitor struct {
	Sink    *stream.Endpoint
	beats   []stream.Beat
	pattern Pattern
	tick    int
}

func NewMonitor(desc *layout.Layout) *Monitor {
	return &Monitor{Sink: stream.NewEndpoint(desc)}
}

// WithPattern gates when ready is asserted.
func (m *Monitor) WithPattern(p Pattern) *Monitor {
	m.pattern = p
	return m
}

func (m *Monitor) Eval() bool {
	return m.Sink.SetReady(m.pattern == nil || m.pattern(m.tick))
}

func (m *Monitor) Commit() {
	if m.Sink.Fired() {
		m.beats = append(m.beats, m.Sink.Beat())
	}
	m.tick++
}

func (m *Monitor) Reset() {
	m.beats = nil
	m.tick = 0
}

// Beats returns the accepted beats in order.
func (m *Monitor) Beats() []stream.Beat { return m.beats }

// Values returns the accepted payloads as integers.
func (m *Monitor) Values() []uint64 {
	out := make([]uint64, len(m.beats))
	for i, b := range m.beats {
		out[i] = b.Payload.Uint64()
	}
	return out
}

// Markers returns the start and end markers of the accepted beats.
func (m *Monitor) Markers() (sop, eop []bool) {
	for _, b := range m.beats {
		sop = append(sop, b.SOP)
		eop = append(eop, b.EOP)
	}
	return sop, eop
}
