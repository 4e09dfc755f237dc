package phy

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/sim"
	"github.com/wippyai/gateware/stream"
)

// Description returns the packetized {data: dw} layout used on PHY streams.
func Description(dw int) *layout.Layout {
	return layout.Must(layout.New([]layout.Field{layout.Bits("data", dw)}, true))
}

// Pads are the MII data signals.
type Pads struct {
	TxEn   bool
	TxEr   bool
	TxData uint8
	RxDv   bool
	RxData uint8
}

// MIITX serializes bytes from Sink onto the transmit pads.
type MIITX struct {
	Sink       *stream.Endpoint
	pads       *Pads
	conv       *stream.Converter
	en         bool
	data       uint8
	registered bool
}

// NewMIITX drives pads from Sink. With registered set the pads are driven
// from flip-flops, one tick after the converter output.
func NewMIITX(pads *Pads, registered bool) (*MIITX, error) {
	conv, err := stream.NewConverter(Description(8), Description(4), true)
	if err != nil {
		return nil, err
	}
	tx := &MIITX{
		Sink:       conv.Sink,
		pads:       pads,
		conv:       conv,
		registered: registered,
	}
	Logger().Debug("mii tx elaborated", zap.Bool("registered", registered))
	return tx, nil
}

func (tx *MIITX) Eval() bool {
	changed := tx.conv.Source.SetReady(true)
	if tx.conv.Eval() {
		changed = true
	}
	en, data := tx.conv.Source.Valid(), uint8(tx.conv.Source.Payload().Uint64())
	if tx.registered {
		en, data = tx.en, tx.data
	}
	for _, ch := range []bool{
		sim.Set(&tx.pads.TxEn, en),
		sim.Set(&tx.pads.TxData, data),
		sim.Set(&tx.pads.TxEr, false),
	} {
		changed = changed || ch
	}
	return changed
}

func (tx *MIITX) Commit() {
	if tx.registered {
		tx.en = tx.conv.Source.Valid()
		tx.data = uint8(tx.conv.Source.Payload().Uint64())
	}
	tx.conv.Commit()
}

func (tx *MIITX) Reset() {
	tx.en, tx.data = false, 0
	tx.conv.Reset()
}

// MIIRX assembles bytes from the receive pads onto Source. The receiver has
// no backpressure: a byte not taken on the tick it is offered may be lost.
type MIIRX struct {
	Source *stream.Endpoint
	pads   *Pads
	conv   *stream.Converter
	data   uint8
	valid  bool
	reset  bool // converter held in reset: RxDv was low
	sop    bool
	sopSet bool
	sopClr bool
}

func NewMIIRX(pads *Pads) (*MIIRX, error) {
	conv, err := stream.NewConverter(Description(4), Description(8), true)
	if err != nil {
		return nil, err
	}
	rx := &MIIRX{
		Source: conv.Source,
		pads:   pads,
		conv:   conv,
		sop:    true,
	}
	Logger().Debug("mii rx elaborated")
	return rx, nil
}

func (rx *MIIRX) Eval() bool {
	changed := rx.conv.Sink.Drive(stream.Beat{
		Valid:   rx.valid,
		Payload: bitvec.FromUint64(4, uint64(rx.data)),
		SOP:     rx.sop,
		EOP:     !rx.pads.RxDv,
	})
	if rx.conv.Eval() {
		changed = true
	}
	return changed
}

func (rx *MIIRX) Commit() {
	rx.conv.Commit()
	if rx.reset {
		rx.conv.Reset()
	}

	dv := rx.pads.RxDv
	switch {
	case rx.sopSet:
		rx.sop = true
	case rx.sopClr:
		rx.sop = false
	}
	rx.sopSet, rx.sopClr = !dv, dv
	rx.reset = !dv
	rx.valid = true
	rx.data = rx.pads.RxData & 0xF
}

func (rx *MIIRX) Reset() {
	*rx = MIIRX{Source: rx.Source, pads: rx.pads, conv: rx.conv, sop: true}
	rx.conv.Reset()
}

// MII is a transmitter and receiver sharing one set of pads.
type MII struct {
	Pads *Pads
	TX   *MIITX
	RX   *MIIRX
}

func NewMII(registered bool) (*MII, error) {
	pads := &Pads{}
	tx, err := NewMIITX(pads, registered)
	if err != nil {
		return nil, err
	}
	rx, err := NewMIIRX(pads)
	if err != nil {
		return nil, err
	}
	return &MII{Pads: pads, TX: tx, RX: rx}, nil
}

func (m *MII) Sink() *stream.Endpoint   { return m.TX.Sink }
func (m *MII) Source() *stream.Endpoint { return m.RX.Source }

// Register adds the transmitter to txDomain and the receiver to rxDomain.
func (m *MII) Register(c *sim.Circuit, txDomain, rxDomain string) error {
	if err := c.AddTo(txDomain, m.TX); err != nil {
		return err
	}
	return c.AddTo(rxDomain, m.RX)
}

// PadLoop ties the transmit pads to the receive pads.
type PadLoop struct {
	Pads *Pads
}

func (l PadLoop) Eval() bool {
	a := sim.Set(&l.Pads.RxDv, l.Pads.TxEn)
	b := sim.Set(&l.Pads.RxData, l.Pads.TxData)
	return a || b
}

func (l PadLoop) Commit() {}
