package phy

import (
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/stream"
)

// Loopback is a PHY whose transmit stream is its receive stream.
type Loopback struct {
	Sink   *stream.Endpoint
	Source *stream.Endpoint
	wire   *stream.Wire
}

// NewLoopback creates a loopback PHY carrying dw-bit packets.
func NewLoopback(dw int) (*Loopback, error) {
	desc, err := layout.New([]layout.Field{layout.Bits("data", dw)}, true)
	if err != nil {
		return nil, err
	}
	l := &Loopback{
		Sink:   stream.NewEndpoint(desc),
		Source: stream.NewEndpoint(desc),
	}
	if l.wire, err = stream.Connect(l.Sink, l.Source); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loopback) Eval() bool { return l.wire.Eval() }
func (l *Loopback) Commit()    {}
