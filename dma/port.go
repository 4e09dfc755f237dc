package dma

import (
	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/sim"
)

// PortConfig describes a memory request interface.
type PortConfig struct {
	// AddressWidth and DataWidth are in bits. Data is at most 64 bits and a
	// whole number of bytes.
	AddressWidth int
	DataWidth    int

	// QueueSize is how many requests the slave holds before it stops
	// acknowledging.
	QueueSize int

	// ReadLatency and WriteLatency are the ticks between a request being
	// queued and its data being acknowledged.
	ReadLatency  int
	WriteLatency int
}

// Port carries the signals between a master and a slave.
type Port struct {
	Config PortConfig

	// master to slave
	Stb   bool
	We    bool
	Adr   uint64
	DatW  uint64
	DatWe uint64 // byte enables

	// slave to master
	ReqAck  bool
	DatR    uint64
	DatRAck bool
	DatWAck bool
}

func NewPort(cfg PortConfig) (*Port, error) {
	switch {
	case cfg.AddressWidth < 1 || cfg.AddressWidth > 64:
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidWidth).
			Path("port", "address").
			Value(cfg.AddressWidth).
			Detail("address width %d outside [1, 64]", cfg.AddressWidth).
			Build()
	case cfg.DataWidth < 8 || cfg.DataWidth > 64 || cfg.DataWidth%8 != 0:
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidWidth).
			Path("port", "data").
			Value(cfg.DataWidth).
			Detail("data width %d must be 8 to 64 bits in whole bytes", cfg.DataWidth).
			Build()
	case cfg.QueueSize < 1:
		return nil, errors.InvalidDepth([]string{"port", "queue"}, cfg.QueueSize, "must be at least 1")
	case cfg.ReadLatency < 0 || cfg.WriteLatency < 0:
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path("port", "latency").
			Detail("latencies must not be negative").
			Build()
	}
	return &Port{Config: cfg}, nil
}

// Issued reports that a request is accepted on this tick.
func (p *Port) Issued() bool { return p.Stb && p.ReqAck }

// ByteMask is the write enable covering every byte of a data word.
func (p *Port) ByteMask() uint64 {
	return 1<<(p.Config.DataWidth/8) - 1
}

func (p *Port) drive(stb, we bool, adr, datW, datWe uint64) bool {
	changed := sim.Set(&p.Stb, stb)
	for _, ch := range []bool{
		sim.Set(&p.We, we),
		sim.Set(&p.Adr, adr),
		sim.Set(&p.DatW, datW),
		sim.Set(&p.DatWe, datWe),
	} {
		changed = changed || ch
	}
	return changed
}
