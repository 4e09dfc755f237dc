package dma

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/stream"
)

// Writer issues a write for every (address, data) beat on its sink.
type Writer struct {
	Sink    *stream.Endpoint // {address, data}
	port    *Port
	fifo    *stream.SyncFIFO
	address layout.Ref
	data    layout.Ref
}

// NewWriter creates a writer on port. A fifoDepth of zero or less sizes the
// FIFO to cover the slave queue and write latency.
func NewWriter(port *Port, fifoDepth int) (*Writer, error) {
	cfg := port.Config
	if fifoDepth <= 0 {
		fifoDepth = cfg.QueueSize + cfg.WriteLatency + 2
	}
	req, err := layout.New([]layout.Field{
		layout.Bits("address", cfg.AddressWidth),
		layout.Bits("data", cfg.DataWidth),
	}, false)
	if err != nil {
		return nil, err
	}
	data, err := layout.New([]layout.Field{layout.Bits("data", cfg.DataWidth)}, false)
	if err != nil {
		return nil, err
	}
	fifo, err := stream.NewSyncFIFO(data, fifoDepth, false)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseElaborate, errors.KindInvalidDepth, err, "dma writer fifo")
	}
	w := &Writer{
		Sink:    stream.NewEndpoint(req),
		port:    port,
		fifo:    fifo,
		address: req.MustRef("address"),
		data:    req.MustRef("data"),
	}
	Logger().Debug("dma writer elaborated",
		zap.Int("address_width", cfg.AddressWidth),
		zap.Int("data_width", cfg.DataWidth),
		zap.Int("fifo_depth", fifoDepth))
	return w, nil
}

func (w *Writer) Eval() bool {
	p := w.port
	writable := w.fifo.Sink.Ready()
	valid := w.Sink.Valid()

	var datW, datWe uint64
	if p.DatWAck {
		datW = w.fifo.Source.Payload().Uint64()
		datWe = p.ByteMask()
	}
	changed := p.drive(writable && valid, true, w.Sink.Get(w.address), datW, datWe)
	if w.Sink.SetReady(writable && p.ReqAck) {
		changed = true
	}
	push := stream.Beat{
		Valid:   valid && p.ReqAck,
		Payload: w.Sink.Field(w.data),
	}
	if w.fifo.Sink.Drive(push) {
		changed = true
	}
	if w.fifo.Source.SetReady(p.DatWAck) {
		changed = true
	}
	if w.fifo.Eval() {
		changed = true
	}
	return changed
}

func (w *Writer) Commit() { w.fifo.Commit() }
func (w *Writer) Reset()  { w.fifo.Reset() }

// Busy reports write data still waiting for the slave.
func (w *Writer) Busy() bool { return w.fifo.Source.Valid() }
