package stream

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
)

// PackState is the registered state of a Pack.
type PackState struct {
	Acc   bitvec.Vector // chunked wide word being assembled
	Index int           // next chunk slot, in [0, n)
	Full  bool          // Acc is offered on the source
	SOP   bool
	EOP   bool
}

// PackOutput is the combinational output of a Pack for one tick.
type PackOutput struct {
	Source    Beat
	SinkReady bool
	Busy      bool
}

// PackFSM accumulates n narrow beats of width bits into one wide beat.
//
// A packetized narrow beat carrying end-of-packet completes the wide beat
// early; the remaining slots keep whatever bits they last held.
type PackFSM struct {
	n          int
	width      int
	reverse    bool
	packetized bool
}

func NewPackFSM(width, n int, reverse, packetized bool) PackFSM {
	return PackFSM{n: n, width: width, reverse: reverse, packetized: packetized}
}

// Reset returns the construction state.
func (f PackFSM) Reset() PackState {
	return PackState{Acc: bitvec.New(f.n * f.width)}
}

func (f PackFSM) slot(index int) int {
	if f.reverse {
		return f.n - 1 - index
	}
	return index
}

// Output computes the outputs for state s given the downstream ready.
func (f PackFSM) Output(s PackState, sourceReady bool) PackOutput {
	return PackOutput{
		Source: Beat{
			Valid:   s.Full,
			Payload: s.Acc,
			SOP:     f.packetized && s.SOP,
			EOP:     f.packetized && s.EOP,
		},
		SinkReady: !s.Full || sourceReady,
		Busy:      s.Full,
	}
}

// Step returns the next state and this tick's outputs.
func (f PackFSM) Step(s PackState, sink Beat, sourceReady bool) (PackState, PackOutput) {
	out := f.Output(s, sourceReady)
	accepted := sink.Valid && out.SinkReady
	consumed := s.Full && sourceReady

	next := s
	if sourceReady {
		next.Full = false
	}
	if accepted {
		next.Acc = s.Acc.Insert(f.slot(s.Index)*f.width, sink.Payload.Resize(f.width))
		if s.Index == f.n-1 || (f.packetized && sink.EOP) {
			next.Index = 0
			next.Full = true
		} else {
			next.Index = s.Index + 1
		}
	}

	if f.packetized {
		switch {
		case consumed && accepted:
			next.SOP, next.EOP = sink.SOP, sink.EOP
		case consumed:
			next.SOP, next.EOP = false, false
		case accepted:
			next.SOP = s.SOP || sink.SOP
			next.EOP = s.EOP || sink.EOP
		}
	}
	return next, out
}

// Pack serializes n narrow beats into one wide chunked beat.
type Pack struct {
	Sink   *Endpoint
	Source *Endpoint
	state  PackState
	fsm    PackFSM
}

// NewPack packs n beats of layout from into one beat of layout.Chunked(from, n).
// Beat i lands in chunk i, or chunk n-1-i when reversed.
func NewPack(from *layout.Layout, n int, reverse bool) (*Pack, error) {
	if n < 1 {
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path("pack").
			Detail("ratio %d must be at least 1", n).
			Build()
	}
	fsm := NewPackFSM(from.Width(), n, reverse, from.Packetized())
	p := &Pack{
		Sink:   NewEndpoint(from),
		Source: NewEndpoint(layout.Chunked(from, n)),
		fsm:    fsm,
		state:  fsm.Reset(),
	}
	Logger().Debug("pack elaborated",
		zap.Stringer("from", from),
		zap.Int("n", n),
		zap.Bool("reverse", reverse))
	return p, nil
}

func (p *Pack) Eval() bool {
	out := p.fsm.Output(p.state, p.Source.Ready())
	changed := p.Source.Drive(out.Source)
	if p.Sink.SetReady(out.SinkReady) {
		changed = true
	}
	return changed
}

func (p *Pack) Commit() {
	p.state, _ = p.fsm.Step(p.state, p.Sink.Beat(), p.Source.Ready())
}

// Busy reports that a wide beat is waiting to be consumed.
func (p *Pack) Busy() bool { return p.state.Full }

func (p *Pack) Reset() { p.state = p.fsm.Reset() }

// State returns the registered state.
func (p *Pack) State() PackState { return p.state }
