package stream

import (
	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/layout"
)

func checkPorts(op string, n int) error {
	if n < 1 {
		return errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path(op).
			Detail("port count %d must be at least 1", n).
			Build()
	}
	return nil
}

func checkSelect(op string, sel, n int) error {
	if sel < 0 || sel >= n {
		return errors.OutOfRange(errors.PhaseSimulate, []string{op, "select"}, sel, n)
	}
	return nil
}

// Multiplexer connects the selected one of n sinks to a single source.
// Unselected sinks see ready low.
type Multiplexer struct {
	Source *Endpoint
	sinks  []*Endpoint
	sel    int
}

func NewMultiplexer(desc *layout.Layout, n int) (*Multiplexer, error) {
	if err := checkPorts("mux", n); err != nil {
		return nil, err
	}
	m := &Multiplexer{
		Source: NewEndpoint(desc),
		sinks:  make([]*Endpoint, n),
	}
	for i := range m.sinks {
		m.sinks[i] = NewEndpoint(desc)
	}
	return m, nil
}

func (m *Multiplexer) Sink(i int) *Endpoint { return m.sinks[i] }
func (m *Multiplexer) Sinks() []*Endpoint   { return m.sinks }
func (m *Multiplexer) N() int               { return len(m.sinks) }
func (m *Multiplexer) Select() int          { return m.sel }

// SetSelect routes sink sel to the source from the next settle on.
// The selector is an input: it takes effect combinationally.
func (m *Multiplexer) SetSelect(sel int) error {
	if err := checkSelect("mux", sel, len(m.sinks)); err != nil {
		return err
	}
	m.sel = sel
	return nil
}

func (m *Multiplexer) Eval() bool {
	changed := false
	for i, s := range m.sinks {
		if i == m.sel {
			if forward(s, m.Source) {
				changed = true
			}
			continue
		}
		if s.SetReady(false) {
			changed = true
		}
	}
	return changed
}

func (m *Multiplexer) Commit() {}

// Demultiplexer connects a single sink to the selected one of n sources.
// Unselected sources see valid low.
type Demultiplexer struct {
	Sink    *Endpoint
	sources []*Endpoint
	sel     int
}

func NewDemultiplexer(desc *layout.Layout, n int) (*Demultiplexer, error) {
	if err := checkPorts("demux", n); err != nil {
		return nil, err
	}
	d := &Demultiplexer{
		Sink:    NewEndpoint(desc),
		sources: make([]*Endpoint, n),
	}
	for i := range d.sources {
		d.sources[i] = NewEndpoint(desc)
	}
	return d, nil
}

func (d *Demultiplexer) Source(i int) *Endpoint { return d.sources[i] }
func (d *Demultiplexer) Sources() []*Endpoint   { return d.sources }
func (d *Demultiplexer) N() int                 { return len(d.sources) }
func (d *Demultiplexer) Select() int            { return d.sel }

// SetSelect routes the sink to source sel.
func (d *Demultiplexer) SetSelect(sel int) error {
	if err := checkSelect("demux", sel, len(d.sources)); err != nil {
		return err
	}
	d.sel = sel
	return nil
}

func (d *Demultiplexer) Eval() bool {
	changed := false
	for i, s := range d.sources {
		if i == d.sel {
			if forward(d.Sink, s) {
				changed = true
			}
			continue
		}
		if s.SetValid(false) {
			changed = true
		}
	}
	return changed
}

func (d *Demultiplexer) Commit() {}
