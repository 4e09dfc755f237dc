package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/gateware/dma"
	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/kernel"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/phy"
	"github.com/wippyai/gateware/sim"
	"github.com/wippyai/gateware/soc"
	"github.com/wippyai/gateware/stream"
	"github.com/wippyai/gateware/stream/streamtest"
)

// Scenario kinds.
const (
	KindConvert  = "convert"
	KindDMA      = "dma"
	KindMII      = "mii"
	KindLoopback = "loopback"
)

// FIFOConfig inserts a FIFO after the converter.
type FIFOConfig struct {
	Kind       string `yaml:"kind"` // sync or async
	Depth      int    `yaml:"depth"`
	Buffered   bool   `yaml:"buffered"`
	ReadPeriod int    `yaml:"read_period"` // async only, ticks per read clock
}

// KernelConfig applies a WebAssembly export to every converted beat.
type KernelConfig struct {
	Path   string `yaml:"path"`
	Export string `yaml:"export"`
}

// PayloadConfig takes the converter layouts from WIT records in a JSON
// file written by `wasm-tools component wit --json`. The records must have
// the same fields, each in the ratio of the total widths.
type PayloadConfig struct {
	WIT  string `yaml:"wit"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Scenario is one simulation run, usually loaded from YAML.
type Scenario struct {
	Payload    *PayloadConfig   `yaml:"payload,omitempty"`
	FIFO       *FIFOConfig      `yaml:"fifo,omitempty"`
	Kernel     *KernelConfig    `yaml:"kernel,omitempty"`
	SDRAM      *soc.SDRAMConfig `yaml:"sdram,omitempty"`
	Name       string           `yaml:"name"`
	Kind       string           `yaml:"kind"`
	From       int              `yaml:"from"`
	To         int              `yaml:"to"`
	Beats      int              `yaml:"beats"`
	Packet     int              `yaml:"packet"` // beats per packet, 0 for one packet
	ValidEvery int              `yaml:"valid_every"`
	ReadyEvery int              `yaml:"ready_every"`
	Limit      int              `yaml:"limit"`
	Latency    int              `yaml:"latency"` // dma read latency
	Reverse    bool             `yaml:"reverse"`
	Packetized bool             `yaml:"packetized"`
	RoundTrip  bool             `yaml:"round_trip"`

	// Layouts loaded from Payload.
	from, to *layout.Layout
}

// LoadScenario reads a YAML scenario. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errors.ParseFailed("scenario "+path, err)
	}
	// Files named by the scenario are relative to it.
	dir := filepath.Dir(path)
	if p := s.Payload; p != nil && p.WIT != "" && !filepath.IsAbs(p.WIT) {
		p.WIT = filepath.Join(dir, p.WIT)
	}
	if k := s.Kernel; k != nil && k.Path != "" && !filepath.IsAbs(k.Path) {
		k.Path = filepath.Join(dir, k.Path)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) normalize() error {
	if s.Kind == "" {
		s.Kind = KindConvert
	}
	if s.Name == "" {
		s.Name = s.Kind
	}
	if s.Beats == 0 {
		s.Beats = 16
	}
	if s.ValidEvery == 0 {
		s.ValidEvery = 1
	}
	if s.ReadyEvery == 0 {
		s.ReadyEvery = 1
	}
	if s.Limit == 0 {
		s.Limit = 64*s.Beats*max(s.ValidEvery, s.ReadyEvery) + 256
	}
	switch s.Kind {
	case KindConvert:
		if p := s.Payload; p != nil && s.from == nil {
			from, err := layout.LoadWITJSON(p.WIT, p.From, s.Packetized)
			if err != nil {
				return err
			}
			to, err := layout.LoadWITJSON(p.WIT, p.To, s.Packetized)
			if err != nil {
				return err
			}
			s.from, s.to = from, to
			s.From, s.To = from.Width(), to.Width()
		}
		for _, w := range []int{s.From, s.To} {
			if w < 1 || w > 64 {
				return errors.New(errors.PhaseConfig, errors.KindInvalidWidth).
					Path("scenario", s.Name).
					Value(w).
					Detail("widths must be 1 to 64 bits, got %d", w).
					Build()
			}
		}
	case KindDMA:
		if s.From == 0 {
			s.From = 32
		}
	case KindMII:
		s.From, s.To, s.Packetized = 8, 8, true
	case KindLoopback:
		if s.From == 0 {
			s.From = 8
		}
		s.To, s.Packetized = s.From, true
	default:
		return errors.Unsupported(errors.PhaseConfig, "scenario kind "+s.Kind)
	}
	if s.Beats < 1 || s.ValidEvery < 1 || s.ReadyEvery < 1 || s.Packet < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "beats, valid_every and ready_every must be positive")
	}
	if s.SDRAM != nil {
		return s.SDRAM.Validate()
	}
	return nil
}

func dataLayout(width int, packetized bool) (*layout.Layout, error) {
	return layout.New([]layout.Field{layout.Bits("data", width)}, packetized)
}

// layouts returns the converter layouts: the WIT records when a payload
// is configured, single data fields otherwise.
func (s *Scenario) layouts() (*layout.Layout, *layout.Layout, error) {
	if s.from != nil {
		return s.from, s.to, nil
	}
	from, err := dataLayout(s.From, s.Packetized)
	if err != nil {
		return nil, nil, err
	}
	to, err := dataLayout(s.To, s.Packetized)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func sequence(n, width int) []uint64 {
	mask := ^uint64(0)
	if width < 64 {
		mask = 1<<width - 1
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = (uint64(i+1)*0x9E3779B97F4A7C15 ^ uint64(i)<<7) & mask
	}
	return out
}

// port is a named endpoint shown in traces.
type port struct {
	name string
	ep   *stream.Endpoint
}

// bench is an assembled scenario ready to run.
type bench struct {
	circuit  *sim.Circuit
	drv      *streamtest.Driver
	mon      *streamtest.Monitor
	checkers []*stream.Checker
	kernels  []*kernel.Map
	ports    []port
	want     []uint64
	closers  []func()
	expect   int
	verify   bool
}

func (b *bench) close() {
	for _, c := range slices.Backward(b.closers) {
		c()
	}
	b.closers = nil
}

func (b *bench) connect(src, dst *stream.Endpoint) error {
	w, err := stream.Connect(src, dst)
	if err != nil {
		return err
	}
	b.circuit.Add(w)
	return nil
}

// watch probes and checks ep under name.
func (b *bench) watch(domain, name string, ep *stream.Endpoint) error {
	chk := stream.NewChecker(name, ep)
	b.checkers = append(b.checkers, chk)
	b.ports = append(b.ports, port{name: name, ep: ep})
	return b.circuit.AddTo(domain, chk, stream.NewProbe(name, ep, false))
}

func (b *bench) done() bool { return len(b.mon.Beats()) >= b.expect }

// kernelErr returns the first failed kernel call in the pipeline.
func (b *bench) kernelErr() error {
	for _, m := range b.kernels {
		if err := m.Err(); err != nil {
			return err
		}
	}
	return nil
}

// finished stops a run on completion or on a failed kernel.
func (b *bench) finished() bool { return b.done() || b.kernelErr() != nil }

// Build assembles the scenario into a circuit.
func (s *Scenario) Build(ctx context.Context, metrics *sim.Metrics) (*bench, error) {
	b := &bench{circuit: sim.NewCircuit(sim.WithMetrics(metrics))}
	var err error
	switch s.Kind {
	case KindDMA:
		err = s.buildDMA(b)
	case KindMII:
		err = s.buildMII(b)
	case KindLoopback:
		err = s.buildLoopback(b)
	default:
		err = s.buildConvert(ctx, b)
	}
	if err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func (s *Scenario) pushInput(b *bench, values []uint64) {
	if !s.Packetized {
		b.drv.PushValues(values...)
		return
	}
	size := s.Packet
	if size == 0 {
		size = len(values)
	}
	for chunk := range slices.Chunk(values, size) {
		b.drv.PushPacket(chunk...)
	}
}

// outputBeats counts the beats a converter from -> to emits when fed beats
// cut into packets of size packet (0 for one packet), including words
// flushed early by end of packet. It also returns the output packet size.
func (s *Scenario) outputBeats(from, to, beats, packet int) (int, int) {
	switch {
	case from > to:
		ratio := from / to
		return beats * ratio, packet * ratio
	case from < to:
		ratio := to / from
		if !s.Packetized {
			return beats / ratio, 0
		}
		size := packet
		if size == 0 {
			size = beats
		}
		n := 0
		for left := beats; left > 0; left -= size {
			n += (min(left, size) + ratio - 1) / ratio
		}
		return n, (packet + ratio - 1) / ratio
	default:
		return beats, packet
	}
}

func (s *Scenario) buildConvert(ctx context.Context, b *bench) error {
	from, to, err := s.layouts()
	if err != nil {
		return err
	}
	if s.From < s.To && !s.Packetized && s.Beats%(s.To/s.From) != 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("scenario", s.Name).
			Detail("%d beats do not fill whole %d-bit words", s.Beats, s.To).
			Build()
	}

	c := b.circuit
	b.drv = streamtest.NewDriver(from).WithPattern(streamtest.Every(s.ValidEvery))
	conv, err := stream.NewConverter(from, to, s.Reverse)
	if err != nil {
		return err
	}
	c.Add(b.drv, conv)
	if err := b.connect(b.drv.Source, conv.Sink); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "in", conv.Sink); err != nil {
		return err
	}
	tail := conv.Source
	domain := sim.DefaultDomain

	if f := s.FIFO; f != nil {
		var sink, source *stream.Endpoint
		switch f.Kind {
		case "", "sync":
			fifo, err := stream.NewSyncFIFO(to, f.Depth, f.Buffered)
			if err != nil {
				return err
			}
			c.Add(fifo)
			sink, source = fifo.Sink, fifo.Source
		case "async":
			fifo, err := stream.NewAsyncFIFO(to, f.Depth, sim.DefaultDomain, "read")
			if err != nil {
				return err
			}
			if err := c.AddDomain("read", max(f.ReadPeriod, 1), 1); err != nil {
				return err
			}
			if err := fifo.Register(c); err != nil {
				return err
			}
			sink, source, domain = fifo.Sink, fifo.Source, "read"
		default:
			return errors.Unsupported(errors.PhaseConfig, "fifo kind "+f.Kind)
		}
		if err := b.connect(tail, sink); err != nil {
			return err
		}
		if err := b.watch(sim.DefaultDomain, "converted", tail); err != nil {
			return err
		}
		tail = source
	}

	if k := s.Kernel; k != nil {
		wasm, err := os.ReadFile(k.Path)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+k.Path)
		}
		kern, err := kernel.Compile(ctx, wasm, nil)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = kern.Close(ctx) })
		m, err := kernel.NewMap(ctx, kern, k.Export, to, to)
		if err != nil {
			return err
		}
		if err := c.AddTo(domain, m); err != nil {
			return err
		}
		b.kernels = append(b.kernels, m)
		if err := b.connect(tail, m.Sink); err != nil {
			return err
		}
		tail = m.Source
	}

	out, outWidth := to, s.To
	var packet int
	b.expect, packet = s.outputBeats(s.From, s.To, s.Beats, s.Packet)
	if s.RoundTrip {
		back, err := stream.NewConverter(to, from, s.Reverse)
		if err != nil {
			return err
		}
		if err := c.AddTo(domain, back); err != nil {
			return err
		}
		if err := b.connect(tail, back.Sink); err != nil {
			return err
		}
		tail, out, outWidth = back.Source, from, s.From
		b.expect, _ = s.outputBeats(s.To, s.From, b.expect, packet)
	}

	b.mon = streamtest.NewMonitor(out).WithPattern(streamtest.Every(s.ReadyEvery))
	if err := c.AddTo(domain, b.mon); err != nil {
		return err
	}
	if err := b.connect(tail, b.mon.Sink); err != nil {
		return err
	}
	if err := b.watch(domain, "out", tail); err != nil {
		return err
	}

	values := sequence(s.Beats, s.From)
	s.pushInput(b, values)

	// Early flushes leave stale bits, so only whole words round trip exactly.
	ratio := max(s.From, s.To) / min(s.From, s.To)
	whole := !s.Packetized || s.From >= s.To || (s.Packet == 0 && s.Beats%ratio == 0) || (s.Packet > 0 && s.Packet%ratio == 0)
	if s.RoundTrip && s.Kernel == nil && whole && outWidth == s.From {
		b.want, b.verify = values, true
	}
	return nil
}

func (s *Scenario) buildDMA(b *bench) error {
	port, err := dma.NewPort(dma.PortConfig{
		AddressWidth: 16,
		DataWidth:    s.From,
		QueueSize:    4,
		ReadLatency:  s.Latency,
	})
	if err != nil {
		return err
	}
	mem := dma.NewMemory(port)
	values := sequence(s.Beats, s.From)
	mem.Load(0x100, values...)

	r, err := dma.NewReader(port, 0)
	if err != nil {
		return err
	}
	c := b.circuit
	b.drv = streamtest.NewDriver(r.Sink.Description()).WithPattern(streamtest.Every(s.ValidEvery))
	b.mon = streamtest.NewMonitor(r.Source.Description()).WithPattern(streamtest.Every(s.ReadyEvery))
	c.Add(b.drv, r, mem, b.mon)
	if err := b.connect(b.drv.Source, r.Sink); err != nil {
		return err
	}
	if err := b.connect(r.Source, b.mon.Sink); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "address", r.Sink); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "data", r.Source); err != nil {
		return err
	}

	for i := range values {
		b.drv.PushValues(0x100 + uint64(i))
	}
	b.want, b.verify, b.expect = values, true, len(values)
	return nil
}

func (s *Scenario) buildMII(b *bench) error {
	mii, err := phy.NewMII(true)
	if err != nil {
		return err
	}
	c := b.circuit
	// The receiver needs a few idle ticks on the pads before the first frame.
	every := streamtest.Every(s.ValidEvery)
	b.drv = streamtest.NewDriver(phy.Description(8)).WithPattern(func(tick int) bool {
		return tick >= 3 && every(tick-3)
	})
	b.mon = streamtest.NewMonitor(phy.Description(8))
	c.Add(b.drv, mii.TX, phy.PadLoop{Pads: mii.Pads}, mii.RX, b.mon)
	if err := b.connect(b.drv.Source, mii.Sink()); err != nil {
		return err
	}
	if err := b.connect(mii.Source(), b.mon.Sink); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "tx", mii.Sink()); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "rx", mii.Source()); err != nil {
		return err
	}

	values := sequence(s.Beats, 8)
	b.drv.PushPacket(values...)
	b.want, b.verify, b.expect = values, s.ValidEvery == 1, len(values)
	return nil
}

func (s *Scenario) buildLoopback(b *bench) error {
	lb, err := phy.NewLoopback(s.From)
	if err != nil {
		return err
	}
	desc := lb.Sink.Description()
	c := b.circuit
	b.drv = streamtest.NewDriver(desc).WithPattern(streamtest.Every(s.ValidEvery))
	b.mon = streamtest.NewMonitor(desc).WithPattern(streamtest.Every(s.ReadyEvery))
	c.Add(b.drv, lb, b.mon)
	if err := b.connect(b.drv.Source, lb.Sink); err != nil {
		return err
	}
	if err := b.connect(lb.Source, b.mon.Sink); err != nil {
		return err
	}
	if err := b.watch(sim.DefaultDomain, "loop", lb.Source); err != nil {
		return err
	}

	values := sequence(s.Beats, s.From)
	s.pushInput(b, values)
	b.want, b.verify, b.expect = values, true, len(values)
	return nil
}

// Result summarizes a finished scenario.
type Result struct {
	Plan       *soc.Plan
	Name       string
	Ticks      uint64
	In         int
	Out        int
	Violations int
	Checked    bool
	OK         bool
}

func (r Result) String() string {
	status := "unchecked"
	if r.Checked {
		status = "ok"
		if !r.OK {
			status = "MISMATCH"
		}
	}
	rate := 0.0
	if r.Ticks > 0 {
		rate = float64(r.Out) / float64(r.Ticks)
	}
	return fmt.Sprintf("%-24s ticks=%-6d in=%-5d out=%-5d beats/tick=%.3f violations=%d %s",
		r.Name, r.Ticks, r.In, r.Out, rate, r.Violations, status)
}

// Run builds the scenario and runs it to completion.
func (s *Scenario) Run(ctx context.Context, metrics *sim.Metrics) (Result, error) {
	b, err := s.Build(ctx, metrics)
	if err != nil {
		return Result{}, err
	}
	defer b.close()
	if err := b.circuit.RunUntil(b.finished, s.Limit); err != nil {
		return Result{}, err
	}
	return b.result(s)
}

func (b *bench) result(s *Scenario) (Result, error) {
	if err := b.kernelErr(); err != nil {
		return Result{}, err
	}
	r := Result{
		Name:  s.Name,
		Ticks: b.circuit.Cycle(),
		In:    b.drv.Sent(),
		Out:   len(b.mon.Beats()),
	}
	for _, chk := range b.checkers {
		r.Violations += len(chk.Violations())
	}
	if b.verify {
		r.Checked = true
		r.OK = slices.Equal(b.mon.Values(), b.want)
	}
	if s.SDRAM != nil {
		plan, err := s.SDRAM.Plan()
		if err != nil {
			return r, err
		}
		r.Plan = plan
	}
	return r, nil
}
