package dma

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/stream"
)

// Reader issues a read for every address on its sink and emits the data
// words on its source in the same order.
type Reader struct {
	Sink   *stream.Endpoint // {address}
	Source *stream.Endpoint // {data}
	port   *Port
	fifo   *stream.SyncFIFO
	depth  int
	rsv    int
}

// NewReader creates a reader on port. A fifoDepth of zero or less sizes the
// FIFO to cover the slave queue and read latency.
func NewReader(port *Port, fifoDepth int) (*Reader, error) {
	cfg := port.Config
	if fifoDepth <= 0 {
		fifoDepth = cfg.QueueSize + cfg.ReadLatency + 2
	}
	addr, err := layout.New([]layout.Field{layout.Bits("address", cfg.AddressWidth)}, false)
	if err != nil {
		return nil, err
	}
	data, err := layout.New([]layout.Field{layout.Bits("data", cfg.DataWidth)}, false)
	if err != nil {
		return nil, err
	}
	fifo, err := stream.NewSyncFIFO(data, fifoDepth, false)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseElaborate, errors.KindInvalidDepth, err, "dma reader fifo")
	}
	r := &Reader{
		Sink:   stream.NewEndpoint(addr),
		Source: fifo.Source,
		port:   port,
		fifo:   fifo,
		depth:  fifoDepth,
	}
	Logger().Debug("dma reader elaborated",
		zap.Int("address_width", cfg.AddressWidth),
		zap.Int("data_width", cfg.DataWidth),
		zap.Int("fifo_depth", fifoDepth))
	return r, nil
}

func (r *Reader) enabled() bool { return r.rsv != r.depth }

func (r *Reader) Eval() bool {
	en := r.enabled()
	p := r.port
	changed := p.drive(r.Sink.Valid() && en, false, r.Sink.Payload().Uint64(), 0, 0)
	if r.Sink.SetReady(p.ReqAck && en) {
		changed = true
	}
	fill := stream.Beat{
		Valid:   p.DatRAck,
		Payload: bitvec.FromUint64(p.Config.DataWidth, p.DatR),
	}
	if r.fifo.Sink.Drive(fill) {
		changed = true
	}
	if r.fifo.Eval() {
		changed = true
	}
	return changed
}

func (r *Reader) Commit() {
	issued := r.port.Issued()
	dequeued := r.Source.Fired()
	switch {
	case issued && !dequeued:
		r.rsv++
	case dequeued && !issued:
		r.rsv--
	}
	r.fifo.Commit()
}

func (r *Reader) Reset() {
	r.rsv = 0
	r.fifo.Reset()
}

// Busy reports outstanding reservations: requested data that has not yet
// left the reader.
func (r *Reader) Busy() bool { return r.rsv != 0 }

// Reserved returns the reservation count.
func (r *Reader) Reserved() int { return r.rsv }

// Depth returns the FIFO depth, which bounds the reservation count.
func (r *Reader) Depth() int { return r.depth }
