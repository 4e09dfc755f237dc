package stream

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/sim"
)

// Mode is the direction of a width conversion.
type Mode int

const (
	Passthrough Mode = iota
	Downconvert
	Upconvert
)

func (m Mode) String() string {
	switch m {
	case Passthrough:
		return "passthrough"
	case Downconvert:
		return "downconvert"
	case Upconvert:
		return "upconvert"
	default:
		return "unknown"
	}
}

// Converter changes the payload width of a stream by an integral ratio.
//
// Equal widths are wired straight through. A narrower output is produced by
// Chunkerize followed by Unpack; a wider one by Pack followed by Unchunkerize.
type Converter struct {
	Sink   *Endpoint
	Source *Endpoint
	parts  sim.Group
	pack   *Pack
	unpack *Unpack
	mode   Mode
	ratio  int
}

// NewConverter builds a converter from layout from to layout to. Both
// layouts must agree on packetization and one total width must divide
// the other.
func NewConverter(from, to *layout.Layout, reverse bool) (*Converter, error) {
	wf, wt := from.Width(), to.Width()
	if wf == 0 || wt == 0 {
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidWidth).
			Path("converter").
			Detail("cannot convert %s to %s", from, to).
			Build()
	}
	if from.Packetized() != to.Packetized() {
		return nil, errors.LayoutMismatch([]string{"converter"},
			"packetization of "+from.String()+" and "+to.String()+" differs")
	}

	c := &Converter{}
	switch {
	case wf == wt:
		c.mode, c.ratio = Passthrough, 1
		c.Sink, c.Source = NewEndpoint(from), NewEndpoint(to)
		w, err := Connect(c.Sink, c.Source)
		if err != nil {
			return nil, err
		}
		c.parts = sim.Group{w}

	case wf > wt:
		if wf%wt != 0 {
			return nil, errors.WidthRatio([]string{"converter"}, wf, wt)
		}
		c.mode, c.ratio = Downconvert, wf/wt
		chunk, err := NewChunkerize(from, to, c.ratio, reverse)
		if err != nil {
			return nil, err
		}
		unpack, err := NewUnpack(c.ratio, to, false)
		if err != nil {
			return nil, err
		}
		w, err := Connect(chunk.Source, unpack.Sink)
		if err != nil {
			return nil, err
		}
		c.Sink, c.Source, c.unpack = chunk.Sink, unpack.Source, unpack
		c.parts = sim.Group{chunk, w, unpack}

	default:
		if wt%wf != 0 {
			return nil, errors.WidthRatio([]string{"converter"}, wf, wt)
		}
		c.mode, c.ratio = Upconvert, wt/wf
		pack, err := NewPack(from, c.ratio, false)
		if err != nil {
			return nil, err
		}
		unchunk, err := NewUnchunkerize(from, c.ratio, to, reverse)
		if err != nil {
			return nil, err
		}
		w, err := Connect(pack.Source, unchunk.Sink)
		if err != nil {
			return nil, err
		}
		c.Sink, c.Source, c.pack = pack.Sink, unchunk.Source, pack
		c.parts = sim.Group{pack, w, unchunk}
	}

	Logger().Debug("converter elaborated",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Stringer("mode", c.mode),
		zap.Int("ratio", c.ratio))
	return c, nil
}

func (c *Converter) Eval() bool { return c.parts.Eval() }
func (c *Converter) Commit()    { c.parts.Commit() }
func (c *Converter) Reset()     { c.parts.Reset() }
func (c *Converter) Mode() Mode { return c.mode }
func (c *Converter) Ratio() int { return c.ratio }

// Busy reports that the converter holds a partially transferred word.
func (c *Converter) Busy() bool {
	switch {
	case c.pack != nil:
		return c.pack.Busy()
	case c.unpack != nil:
		return c.unpack.Busy()
	default:
		return false
	}
}
