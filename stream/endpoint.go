package stream

import (
	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/sim"
)

// Beat is the producer-driven side of an endpoint.
type Beat struct {
	Payload bitvec.Vector
	Valid   bool
	SOP     bool
	EOP     bool
}

// Same reports whether two beats carry identical payload and markers.
func (b Beat) Same(o Beat) bool {
	return b.Valid == o.Valid && b.SOP == o.SOP && b.EOP == o.EOP && b.Payload.Equal(o.Payload)
}

// Endpoint is a directed channel with a valid/ready handshake.
// Its layout is shared and read-only; its signals are recomputed every tick.
type Endpoint struct {
	desc    *layout.Layout
	payload bitvec.Vector
	valid   bool
	ready   bool
	sop     bool
	eop     bool
}

func NewEndpoint(desc *layout.Layout) *Endpoint {
	return &Endpoint{
		desc:    desc,
		payload: desc.Zero(),
	}
}

// Description returns the endpoint's layout.
func (e *Endpoint) Description() *layout.Layout {
	return e.desc
}

func (e *Endpoint) Valid() bool                      { return e.valid }
func (e *Endpoint) Ready() bool                      { return e.ready }
func (e *Endpoint) SOP() bool                        { return e.sop }
func (e *Endpoint) EOP() bool                        { return e.eop }
func (e *Endpoint) Payload() bitvec.Vector           { return e.payload }
func (e *Endpoint) Get(r layout.Ref) uint64          { return r.Uint64(e.payload) }
func (e *Endpoint) Fired() bool                      { return e.valid && e.ready }
func (e *Endpoint) Packetized() bool                 { return e.desc.Packetized() }
func (e *Endpoint) Field(r layout.Ref) bitvec.Vector { return r.Get(e.payload) }

// Beat returns the producer-driven signals.
func (e *Endpoint) Beat() Beat {
	return Beat{
		Valid:   e.valid,
		Payload: e.payload,
		SOP:     e.sop,
		EOP:     e.eop,
	}
}

// Drive sets every producer-driven signal and reports whether any changed.
// The payload is resized to the layout width; markers are ignored on
// layouts that are not packetized.
func (e *Endpoint) Drive(b Beat) bool {
	changed := sim.Set(&e.valid, b.Valid)
	if e.SetPayload(b.Payload) {
		changed = true
	}
	if e.SetSOP(b.SOP) {
		changed = true
	}
	if e.SetEOP(b.EOP) {
		changed = true
	}
	return changed
}

// SetValid drives valid and reports whether it changed.
func (e *Endpoint) SetValid(v bool) bool {
	return sim.Set(&e.valid, v)
}

// SetReady drives ready and reports whether it changed.
func (e *Endpoint) SetReady(r bool) bool {
	return sim.Set(&e.ready, r)
}

// SetPayload drives the payload and reports whether it changed.
func (e *Endpoint) SetPayload(v bitvec.Vector) bool {
	v = v.Resize(e.desc.Width())
	if v.Equal(e.payload) {
		return false
	}
	e.payload = v
	return true
}

// SetSOP drives start-of-packet on packetized layouts.
func (e *Endpoint) SetSOP(v bool) bool {
	return sim.Set(&e.sop, v && e.desc.Packetized())
}

// SetEOP drives end-of-packet on packetized layouts.
func (e *Endpoint) SetEOP(v bool) bool {
	return sim.Set(&e.eop, v && e.desc.Packetized())
}

// Connect wires e as the producer of sink.
func (e *Endpoint) Connect(sink *Endpoint) (*Wire, error) {
	return Connect(e, sink)
}

// forward copies the producer signals of src to dst and ready back from
// dst to src.
func forward(src, dst *Endpoint) bool {
	changed := dst.Drive(src.Beat())
	if src.SetReady(dst.Ready()) {
		changed = true
	}
	return changed
}

// Wire is a direct, zero-latency connection between two endpoints.
type Wire struct {
	src *Endpoint
	dst *Endpoint
}

// Connect returns a wire forwarding src to dst. Both payloads must have the
// same width.
func Connect(src, dst *Endpoint) (*Wire, error) {
	if src.desc.Width() != dst.desc.Width() {
		return nil, errors.New(errors.PhaseElaborate, errors.KindLayoutMismatch).
			Path("connect").
			Detail("source %s is %d bits, sink %s is %d bits",
				src.desc, src.desc.Width(), dst.desc, dst.desc.Width()).
			Build()
	}
	return &Wire{src: src, dst: dst}, nil
}

func (w *Wire) Eval() bool { return forward(w.src, w.dst) }
func (w *Wire) Commit()    {}
