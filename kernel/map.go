package kernel

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/stream"
)

// Map applies a kernel export to every beat. It holds no state beyond its
// result cache and adds no latency; valid, ready and markers pass through.
type Map struct {
	Sink   *stream.Endpoint
	Source *stream.Endpoint
	ctx    context.Context
	fn     api.Function
	cache  map[uint64]uint64
	err    error
	export string
	calls  int
}

// NewMap builds a stage applying export to payloads of layout from, giving
// payloads of layout to. ctx is used for every call into the kernel.
func NewMap(ctx context.Context, k *Kernel, export string, from, to *layout.Layout) (*Map, error) {
	for _, l := range []*layout.Layout{from, to} {
		if l.Width() > 64 {
			return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidWidth).
				Path("map", export).
				Value(l.Width()).
				Detail("%s is %d bits, kernels take at most 64", l, l.Width()).
				Build()
		}
	}
	fn, err := k.function(export)
	if err != nil {
		return nil, err
	}
	m := &Map{
		Sink:   stream.NewEndpoint(from),
		Source: stream.NewEndpoint(to.WithPacketized(from.Packetized())),
		ctx:    ctx,
		fn:     fn,
		cache:  make(map[uint64]uint64),
		export: export,
	}
	Logger().Debug("map elaborated",
		zap.String("export", export),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	return m, nil
}

func (m *Map) apply(in uint64) uint64 {
	if out, ok := m.cache[in]; ok {
		return out
	}
	// A failed kernel is not entered again; the stage emits zeros.
	if m.err != nil {
		return 0
	}
	m.calls++
	res, err := m.fn.Call(m.ctx, in)
	if err != nil {
		m.err = errors.New(errors.PhaseKernel, errors.KindInvalidData).
			Path("map", m.export).
			Value(in).
			Cause(err).
			Detail("call failed").
			Build()
		Logger().Error("kernel call failed",
			zap.String("export", m.export),
			zap.Uint64("input", in),
			zap.Error(err))
		return 0
	}
	m.cache[in] = res[0]
	return res[0]
}

func (m *Map) Eval() bool {
	b := m.Sink.Beat()
	if b.Valid {
		b.Payload = bitvec.FromUint64(m.Source.Description().Width(), m.apply(b.Payload.Uint64()))
	}
	changed := m.Source.Drive(b)
	if m.Sink.SetReady(m.Source.Ready()) {
		changed = true
	}
	return changed
}

func (m *Map) Commit() {}

// Err returns the first failed kernel call, if any. Once set, the kernel
// is no longer called.
func (m *Map) Err() error { return m.err }

// Calls returns how many times the kernel was entered.
func (m *Map) Calls() int { return m.calls }
