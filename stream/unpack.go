package stream

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/layout"
)

// UnpackState is the registered state of an Unpack.
type UnpackState struct {
	Index int // chunk being offered, in [0, n)
}

// UnpackOutput is the combinational output of an Unpack for one tick.
type UnpackOutput struct {
	Source    Beat
	SinkReady bool
	Busy      bool
}

// UnpackFSM emits one wide chunked beat as n narrow beats of width bits.
// The wide beat is only acknowledged together with its last narrow beat.
type UnpackFSM struct {
	n          int
	width      int
	reverse    bool
	packetized bool
}

func NewUnpackFSM(width, n int, reverse, packetized bool) UnpackFSM {
	return UnpackFSM{n: n, width: width, reverse: reverse, packetized: packetized}
}

// Reset returns the construction state.
func (f UnpackFSM) Reset() UnpackState {
	return UnpackState{}
}

func (f UnpackFSM) slot(index int) int {
	if f.reverse {
		return f.n - 1 - index
	}
	return index
}

// Output computes the outputs for state s given the wide input and the
// downstream ready.
func (f UnpackFSM) Output(s UnpackState, sink Beat, sourceReady bool) UnpackOutput {
	first := s.Index == 0
	last := s.Index == f.n-1
	return UnpackOutput{
		Source: Beat{
			Valid:   sink.Valid,
			Payload: sink.Payload.Slice(f.slot(s.Index)*f.width, f.width),
			SOP:     f.packetized && sink.SOP && first,
			EOP:     f.packetized && sink.EOP && last,
		},
		SinkReady: last && sourceReady,
		Busy:      !first,
	}
}

// Step returns the next state and this tick's outputs.
func (f UnpackFSM) Step(s UnpackState, sink Beat, sourceReady bool) (UnpackState, UnpackOutput) {
	out := f.Output(s, sink, sourceReady)
	next := s
	if out.Source.Valid && sourceReady {
		if s.Index == f.n-1 {
			next.Index = 0
		} else {
			next.Index = s.Index + 1
		}
	}
	return next, out
}

// Unpack deserializes one wide chunked beat into n narrow beats.
type Unpack struct {
	Sink   *Endpoint
	Source *Endpoint
	state  UnpackState
	fsm    UnpackFSM
}

// NewUnpack emits each beat of layout.Chunked(to, n) as n beats of layout to,
// chunk 0 first (chunk n-1 first when reversed).
func NewUnpack(n int, to *layout.Layout, reverse bool) (*Unpack, error) {
	if n < 1 {
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path("unpack").
			Detail("ratio %d must be at least 1", n).
			Build()
	}
	fsm := NewUnpackFSM(to.Width(), n, reverse, to.Packetized())
	u := &Unpack{
		Sink:   NewEndpoint(layout.Chunked(to, n)),
		Source: NewEndpoint(to),
		fsm:    fsm,
		state:  fsm.Reset(),
	}
	Logger().Debug("unpack elaborated",
		zap.Stringer("to", to),
		zap.Int("n", n),
		zap.Bool("reverse", reverse))
	return u, nil
}

func (u *Unpack) Eval() bool {
	out := u.fsm.Output(u.state, u.Sink.Beat(), u.Source.Ready())
	changed := u.Source.Drive(out.Source)
	if u.Sink.SetReady(out.SinkReady) {
		changed = true
	}
	return changed
}

func (u *Unpack) Commit() {
	u.state, _ = u.fsm.Step(u.state, u.Sink.Beat(), u.Source.Ready())
}

// Busy reports that part of a wide beat has been emitted.
func (u *Unpack) Busy() bool { return u.state.Index != 0 }

func (u *Unpack) Reset() { u.state = u.fsm.Reset() }

// State returns the registered state.
func (u *Unpack) State() UnpackState { return u.state }
