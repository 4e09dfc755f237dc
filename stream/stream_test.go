package stream_test

import (
	"fmt"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/sim"
	"github.com/wippyai/gateware/stream"
	"github.com/wippyai/gateware/stream/streamtest"
)

func data(t *testing.T, width int, packetized bool) *layout.Layout {
	t.Helper()
	l, err := layout.New([]layout.Field{layout.Bits("data", width)}, packetized)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return l
}

// chain connects endpoints pairwise: eps[0] to eps[1], eps[2] to eps[3], ...
func chain(t *testing.T, c *sim.Circuit, eps ...*stream.Endpoint) {
	t.Helper()
	for i := 0; i+1 < len(eps); i += 2 {
		w, err := stream.Connect(eps[i], eps[i+1])
		if err != nil {
			t.Fatalf("connect %d: %v", i/2, err)
		}
		c.Add(w)
	}
}

func waitFor(t *testing.T, c *sim.Circuit, mon *streamtest.Monitor, n int) {
	t.Helper()
	err := c.RunUntil(func() bool { return len(mon.Beats()) >= n }, 64*n+64)
	if err != nil {
		t.Fatalf("after %d beats: %v", len(mon.Beats()), err)
	}
}

func sequence(n, width int) []uint64 {
	mask := uint64(1)<<width - 1
	if width >= 64 {
		mask = ^uint64(0)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = (uint64(i+1)*0x9E3779B97F4A7C15 ^ uint64(i)<<7) & mask
	}
	return out
}

func TestConverterDownconvertScenario(t *testing.T) {
	tests := []struct {
		name    string
		reverse bool
		want    []uint64
	}{
		{"forward", false, []uint64{0xAB, 0xCD}},
		{"reverse", true, []uint64{0xCD, 0xAB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := stream.NewConverter(data(t, 16, true), data(t, 8, true), tt.reverse)
			if err != nil {
				t.Fatalf("NewConverter: %v", err)
			}
			if conv.Mode() != stream.Downconvert || conv.Ratio() != 2 {
				t.Fatalf("mode %s ratio %d", conv.Mode(), conv.Ratio())
			}

			drv := streamtest.NewDriver(data(t, 16, true))
			mon := streamtest.NewMonitor(data(t, 8, true))
			c := sim.NewCircuit()
			c.Add(drv, conv, mon)
			chain(t, c, drv.Source, conv.Sink, conv.Source, mon.Sink)
			drv.PushPacket(0xABCD)

			if err := c.Run(1); err != nil {
				t.Fatal(err)
			}
			if !conv.Busy() {
				t.Error("converter not busy mid-word")
			}
			if drv.Pending() != 1 {
				t.Error("wide beat acknowledged before its last chunk")
			}
			if err := c.Run(1); err != nil {
				t.Fatal(err)
			}
			if conv.Busy() {
				t.Error("converter busy after the last chunk")
			}

			if got := mon.Values(); !slices.Equal(got, tt.want) {
				t.Errorf("values = %#x, want %#x", got, tt.want)
			}
			sop, eop := mon.Markers()
			if !slices.Equal(sop, []bool{true, false}) || !slices.Equal(eop, []bool{false, true}) {
				t.Errorf("markers sop=%v eop=%v", sop, eop)
			}
		})
	}
}

func TestConverterUpconvertPacket(t *testing.T) {
	conv, err := stream.NewConverter(data(t, 8, true), data(t, 32, true), false)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	drv := streamtest.NewDriver(data(t, 8, true))
	mon := streamtest.NewMonitor(data(t, 32, true))
	c := sim.NewCircuit()
	c.Add(drv, conv, mon)
	chain(t, c, drv.Source, conv.Sink, conv.Source, mon.Sink)

	drv.PushPacket(0x01, 0x02, 0x03, 0x04, 0x05, 0x06)
	waitFor(t, c, mon, 2)

	got := mon.Values()
	if got[0] != 0x01020304 {
		t.Errorf("first word = %#x, want 0x01020304", got[0])
	}
	// The short second word is flushed by end of packet; its low half
	// still holds bytes from the first word.
	if got[1] != 0x05060304 {
		t.Errorf("flushed word = %#x, want 0x05060304", got[1])
	}
	sop, eop := mon.Markers()
	if !slices.Equal(sop, []bool{true, false}) || !slices.Equal(eop, []bool{false, true}) {
		t.Errorf("markers sop=%v eop=%v", sop, eop)
	}
}

func TestConverterRoundTrip(t *testing.T) {
	tests := []struct {
		from, to int
	}{
		{8, 8}, {16, 8}, {32, 8}, {24, 8}, {64, 16}, {8, 4}, {12, 4},
		{8, 16}, {8, 32}, {4, 8}, {16, 64}, {10, 30},
	}

	for _, tt := range tests {
		for _, reverse := range []bool{false, true} {
			t.Run(fmt.Sprintf("%d-%d-reverse=%v", tt.from, tt.to, reverse), func(t *testing.T) {
				there, err := stream.NewConverter(data(t, tt.from, false), data(t, tt.to, false), reverse)
				if err != nil {
					t.Fatalf("NewConverter: %v", err)
				}
				back, err := stream.NewConverter(data(t, tt.to, false), data(t, tt.from, false), reverse)
				if err != nil {
					t.Fatalf("NewConverter: %v", err)
				}

				drv := streamtest.NewDriver(data(t, tt.from, false)).WithPattern(streamtest.Every(2))
				mon := streamtest.NewMonitor(data(t, tt.from, false)).WithPattern(streamtest.Every(3))
				c := sim.NewCircuit()
				c.Add(drv, there, back, mon)
				chain(t, c,
					drv.Source, there.Sink,
					there.Source, back.Sink,
					back.Source, mon.Sink)

				in := sequence(12, tt.from)
				drv.PushValues(in...)
				waitFor(t, c, mon, len(in))
				if got := mon.Values(); !slices.Equal(got, in) {
					t.Errorf("values = %#x, want %#x", got, in)
				}
			})
		}
	}
}

func TestConverterWideRoundTrip(t *testing.T) {
	tests := []struct {
		from, to int
	}{
		{128, 32}, {32, 128}, {200, 8}, {8, 200}, {65, 195}, {195, 65},
	}

	for _, tt := range tests {
		for _, reverse := range []bool{false, true} {
			t.Run(fmt.Sprintf("%d-%d-reverse=%v", tt.from, tt.to, reverse), func(t *testing.T) {
				from, to := data(t, tt.from, true), data(t, tt.to, true)
				there, err := stream.NewConverter(from, to, reverse)
				if err != nil {
					t.Fatalf("NewConverter: %v", err)
				}
				back, err := stream.NewConverter(to, from, reverse)
				if err != nil {
					t.Fatalf("NewConverter: %v", err)
				}

				drv := streamtest.NewDriver(from).WithPattern(streamtest.Every(2))
				mon := streamtest.NewMonitor(from).WithPattern(streamtest.Stall(5, 7))
				mid := stream.NewProbe("mid", there.Source, true)
				c := sim.NewCircuit()
				c.Add(drv, there, back, mon, mid)
				chain(t, c,
					drv.Source, there.Sink,
					there.Source, back.Sink,
					back.Source, mon.Sink)

				// Packets span whole words of the wider side.
				ratio := max(tt.from, tt.to) / min(tt.from, tt.to)
				perPacket := 1
				if tt.from < tt.to {
					perPacket = ratio
				}
				var in []stream.Beat
				for i := range 3 * perPacket {
					words := sequence(4, 64)
					for j := range words {
						words[j] ^= uint64(i) * 0x0101010101010101
					}
					in = append(in, stream.Beat{
						Payload: bitvec.FromWords(tt.from, words...),
						SOP:     i%perPacket == 0,
						EOP:     i%perPacket == perPacket-1,
					})
				}
				drv.Push(in...)
				waitFor(t, c, mon, len(in))

				got := mon.Beats()
				for i, b := range in {
					if !got[i].Payload.Equal(b.Payload) || got[i].SOP != b.SOP || got[i].EOP != b.EOP {
						t.Errorf("beat %d = %s sop=%v eop=%v, want %s sop=%v eop=%v",
							i, got[i].Payload, got[i].SOP, got[i].EOP, b.Payload, b.SOP, b.EOP)
					}
				}

				// The first narrow chunk is the most significant slice, or the
				// least significant one when reversed.
				if tt.from > tt.to {
					lo := tt.from - tt.to
					if reverse {
						lo = 0
					}
					first := mid.Beats()[0].Payload
					if want := in[0].Payload.Slice(lo, tt.to); !first.Equal(want) {
						t.Errorf("first chunk = %s, want %s", first, want)
					}
				}
			})
		}
	}
}

func TestConverterMultiField(t *testing.T) {
	wide := layout.Must(layout.New([]layout.Field{
		layout.Bits("a", 16),
		layout.Bits("b", 8),
	}, false))
	narrow := layout.Must(layout.New([]layout.Field{
		layout.Bits("a", 8),
		layout.Bits("b", 4),
	}, false))

	conv, err := stream.NewConverter(wide, narrow, false)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	drv := streamtest.NewDriver(wide)
	mon := streamtest.NewMonitor(narrow)
	c := sim.NewCircuit()
	c.Add(drv, conv, mon)
	chain(t, c, drv.Source, conv.Sink, conv.Source, mon.Sink)

	drv.Push(stream.Beat{Payload: wide.Encode(0x1234, 0x56)})
	waitFor(t, c, mon, 2)

	want := [][]uint64{{0x12, 0x5}, {0x34, 0x6}}
	for i, b := range mon.Beats() {
		if got := narrow.Decode(b.Payload); !slices.Equal(got, want[i]) {
			t.Errorf("beat %d = %#x, want %#x", i, got, want[i])
		}
	}
}

func TestStallLosesNothing(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
	}{
		{"passthrough", 8, 8},
		{"downconvert", 32, 8},
		{"upconvert", 8, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := stream.NewConverter(data(t, tt.from, true), data(t, tt.to, true), false)
			if err != nil {
				t.Fatalf("NewConverter: %v", err)
			}
			drv := streamtest.NewDriver(data(t, tt.from, true))
			mon := streamtest.NewMonitor(data(t, tt.to, true)).WithPattern(streamtest.Stall(1, 7))
			in := stream.NewChecker("in", conv.Sink)
			out := stream.NewChecker("out", conv.Source)
			c := sim.NewCircuit()
			c.Add(drv, conv, mon, in, out)
			chain(t, c, drv.Source, conv.Sink, conv.Source, mon.Sink)

			// A whole number of words at either width.
			values := sequence(8, 8)
			var wide uint64
			var beats []uint64
			switch {
			case tt.from > tt.to:
				for i := 0; i < len(values); i += 4 {
					wide = values[i]<<24 | values[i+1]<<16 | values[i+2]<<8 | values[i+3]
					beats = append(beats, wide)
				}
				drv.PushValues(beats...)
			default:
				drv.PushValues(values...)
			}

			n := len(values) * 8 / tt.to
			waitFor(t, c, mon, n)

			var got []uint64
			if tt.to == 32 {
				for _, w := range mon.Values() {
					got = append(got, w>>24, w>>16&0xFF, w>>8&0xFF, w&0xFF)
				}
			} else {
				got = mon.Values()
			}
			if !slices.Equal(got, values) {
				t.Errorf("values = %#x, want %#x", got, values)
			}
			if v := append(in.Violations(), out.Violations()...); len(v) > 0 {
				t.Errorf("handshake violations: %v", v)
			}
		})
	}
}

func TestMultiplexerScenario(t *testing.T) {
	l := data(t, 8, false)
	mux, err := stream.NewMultiplexer(l, 2)
	if err != nil {
		t.Fatalf("NewMultiplexer: %v", err)
	}
	d0 := streamtest.NewDriver(l)
	d1 := streamtest.NewDriver(l)
	mon := streamtest.NewMonitor(l)
	c := sim.NewCircuit()
	c.Add(d0, d1, mux, mon)
	chain(t, c, d0.Source, mux.Sink(0), d1.Source, mux.Sink(1), mux.Source, mon.Sink)

	d0.PushValues(0x11)
	d1.PushValues(0x22)
	if err := mux.SetSelect(1); err != nil {
		t.Fatal(err)
	}
	if err := c.Settle(); err != nil {
		t.Fatal(err)
	}

	if got := mux.Source.Payload().Uint64(); got != 0x22 || !mux.Source.Valid() {
		t.Errorf("source = %#x valid=%v, want 0x22", got, mux.Source.Valid())
	}
	if d0.Source.Ready() {
		t.Error("unselected sink is ready")
	}
	if !d1.Source.Ready() {
		t.Error("selected sink is not ready")
	}

	if err := c.Run(1); err != nil {
		t.Fatal(err)
	}
	if d0.Pending() != 1 || d1.Pending() != 0 {
		t.Errorf("pending = %d/%d, want 1/0", d0.Pending(), d1.Pending())
	}

	if err := mux.SetSelect(0); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, mon, 2)
	if got := mon.Values(); !slices.Equal(got, []uint64{0x22, 0x11}) {
		t.Errorf("values = %#x", got)
	}

	err = mux.SetSelect(2)
	if !errors.IsKind(err, errors.KindOutOfRange) {
		t.Errorf("SetSelect(2) = %v, want out of range", err)
	}
	if mux.Select() != 0 {
		t.Errorf("select changed to %d by a rejected value", mux.Select())
	}
}

func TestDemultiplexerRoutes(t *testing.T) {
	l := data(t, 8, true)
	demux, err := stream.NewDemultiplexer(l, 3)
	if err != nil {
		t.Fatalf("NewDemultiplexer: %v", err)
	}
	drv := streamtest.NewDriver(l)
	mons := []*streamtest.Monitor{
		streamtest.NewMonitor(l),
		streamtest.NewMonitor(l),
		streamtest.NewMonitor(l),
	}
	c := sim.NewCircuit()
	c.Add(drv, demux)
	chain(t, c, drv.Source, demux.Sink)
	for i, m := range mons {
		c.Add(m)
		chain(t, c, demux.Source(i), m.Sink)
	}

	drv.PushPacket(0xA1, 0xA2)
	if err := demux.SetSelect(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, c, mons[2], 2)

	if len(mons[0].Beats())+len(mons[1].Beats()) != 0 {
		t.Error("unselected sources received beats")
	}
	if got := mons[2].Values(); !slices.Equal(got, []uint64{0xA1, 0xA2}) {
		t.Errorf("values = %#x", got)
	}
	sop, eop := mons[2].Markers()
	if !slices.Equal(sop, []bool{true, false}) || !slices.Equal(eop, []bool{false, true}) {
		t.Errorf("markers sop=%v eop=%v", sop, eop)
	}
	if !errors.IsKind(demux.SetSelect(-1), errors.KindOutOfRange) {
		t.Error("negative select accepted")
	}
}

func TestSyncFIFO(t *testing.T) {
	tests := []struct {
		name     string
		buffered bool
		capacity int
	}{
		{"unbuffered", false, 4},
		{"buffered", true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := data(t, 8, true)
			fifo, err := stream.NewSyncFIFO(l, 4, tt.buffered)
			if err != nil {
				t.Fatalf("NewSyncFIFO: %v", err)
			}
			drv := streamtest.NewDriver(l)
			mon := streamtest.NewMonitor(l).WithPattern(streamtest.Stall(0, 12))
			c := sim.NewCircuit()
			c.Add(drv, fifo, mon)
			chain(t, c, drv.Source, fifo.Sink, fifo.Source, mon.Sink)

			peak := 0
			c.OnCommit(func(cycle uint64) {
				peak = max(peak, fifo.Level())
				if !tt.buffered && fifo.Source.Valid() != (fifo.Level() != 0) {
					t.Errorf("cycle %d: valid=%v with level %d", cycle, fifo.Source.Valid(), fifo.Level())
				}
				if fifo.Level() == tt.capacity && fifo.Sink.Ready() {
					t.Errorf("cycle %d: ready while full", cycle)
				}
			})

			values := sequence(10, 8)
			drv.PushPacket(values...)
			waitFor(t, c, mon, len(values))

			if peak != tt.capacity {
				t.Errorf("peak level = %d, want %d", peak, tt.capacity)
			}
			if got := mon.Values(); !slices.Equal(got, values) {
				t.Errorf("values = %#x, want %#x", got, values)
			}
			sop, eop := mon.Markers()
			if !sop[0] || !eop[len(eop)-1] || slices.Contains(sop[1:], true) || slices.Contains(eop[:len(eop)-1], true) {
				t.Errorf("markers sop=%v eop=%v", sop, eop)
			}
			if err := c.Run(2); err != nil {
				t.Fatal(err)
			}
			if fifo.Level() != 0 || fifo.Source.Valid() {
				t.Errorf("drained fifo level=%d valid=%v", fifo.Level(), fifo.Source.Valid())
			}
		})
	}
}

func TestAsyncFIFOCrossesDomains(t *testing.T) {
	tests := []struct {
		name    string
		wperiod int
		rperiod int
	}{
		{"fast writer", 1, 3},
		{"fast reader", 4, 1},
		{"same rate", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := data(t, 16, false)
			fifo, err := stream.NewAsyncFIFO(l, 4, "wr", "rd")
			if err != nil {
				t.Fatalf("NewAsyncFIFO: %v", err)
			}
			c := sim.NewCircuit()
			if err := c.AddDomain("wr", tt.wperiod, 0); err != nil {
				t.Fatal(err)
			}
			if err := c.AddDomain("rd", tt.rperiod, 1); err != nil {
				t.Fatal(err)
			}
			drv := streamtest.NewDriver(l)
			mon := streamtest.NewMonitor(l)
			if err := c.AddTo("wr", drv); err != nil {
				t.Fatal(err)
			}
			if err := c.AddTo("rd", mon); err != nil {
				t.Fatal(err)
			}
			if err := fifo.Register(c); err != nil {
				t.Fatal(err)
			}
			chain(t, c, drv.Source, fifo.Sink, fifo.Source, mon.Sink)

			c.OnCommit(func(cycle uint64) {
				if fifo.Level() > fifo.Depth() {
					t.Errorf("cycle %d: level %d exceeds depth", cycle, fifo.Level())
				}
			})

			values := sequence(20, 16)
			drv.PushValues(values...)
			waitFor(t, c, mon, len(values))
			if got := mon.Values(); !slices.Equal(got, values) {
				t.Errorf("values = %#x, want %#x", got, values)
			}
		})
	}
}

func TestProbeCountsTransfers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := sim.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	l := data(t, 8, false)
	fifo, err := stream.NewSyncFIFO(l, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	drv := streamtest.NewDriver(l)
	mon := streamtest.NewMonitor(l)
	probe := stream.NewProbe("fifo_out", fifo.Source, true)
	c := sim.NewCircuit(sim.WithMetrics(m))
	c.Add(drv, fifo, mon, probe)
	chain(t, c, drv.Source, fifo.Sink, fifo.Source, mon.Sink)

	drv.PushValues(1, 2, 3)
	waitFor(t, c, mon, 3)

	if probe.Count() != 3 || len(probe.Beats()) != 3 {
		t.Errorf("probe saw %d beats", probe.Count())
	}
	if got := testutil.ToFloat64(m.Transfers.WithLabelValues("fifo_out")); got != 3 {
		t.Errorf("transfers metric = %v, want 3", got)
	}
}

func TestCheckerReportsViolations(t *testing.T) {
	l := data(t, 8, false)
	ep := stream.NewEndpoint(l)
	chk := stream.NewChecker("bad", ep)
	c := sim.NewCircuit()
	c.Add(chk)

	ep.Drive(stream.Beat{Valid: true, Payload: bitvec.FromUint64(8, 1)})
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}
	ep.Drive(stream.Beat{Valid: true, Payload: bitvec.FromUint64(8, 2)})
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}
	ep.Drive(stream.Beat{Payload: bitvec.FromUint64(8, 2)})
	if err := c.Tick(); err != nil {
		t.Fatal(err)
	}

	v := chk.Violations()
	if len(v) != 2 {
		t.Fatalf("violations = %v, want 2", v)
	}
	for _, err := range v {
		if !errors.IsKind(err, errors.KindProtocolViolation) {
			t.Errorf("violation %v has wrong kind", err)
		}
	}
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		kind errors.Kind
		make func(t *testing.T) error
	}{
		{"downconvert ratio", errors.KindWidthRatio, func(t *testing.T) error {
			_, err := stream.NewConverter(data(t, 16, false), data(t, 6, false), false)
			return err
		}},
		{"upconvert ratio", errors.KindWidthRatio, func(t *testing.T) error {
			_, err := stream.NewConverter(data(t, 8, false), data(t, 12, false), false)
			return err
		}},
		{"packetization", errors.KindLayoutMismatch, func(t *testing.T) error {
			_, err := stream.NewConverter(data(t, 8, true), data(t, 16, false), false)
			return err
		}},
		{"missing field", errors.KindLayoutMismatch, func(t *testing.T) error {
			other := layout.Must(layout.New([]layout.Field{layout.Bits("other", 8)}, false))
			_, err := stream.NewConverter(data(t, 16, false), other, false)
			return err
		}},
		{"field ratio", errors.KindWidthRatio, func(t *testing.T) error {
			from := layout.Must(layout.New([]layout.Field{layout.Bits("a", 12), layout.Bits("b", 6)}, false))
			to := layout.Must(layout.New([]layout.Field{layout.Bits("a", 3), layout.Bits("b", 2)}, false))
			_, err := stream.NewChunkerize(from, to, 4, false)
			return err
		}},
		{"chunk count", errors.KindInvalidInput, func(t *testing.T) error {
			_, err := stream.NewChunkerize(data(t, 8, false), data(t, 8, false), 0, false)
			return err
		}},
		{"connect width", errors.KindLayoutMismatch, func(t *testing.T) error {
			_, err := stream.Connect(stream.NewEndpoint(data(t, 8, false)), stream.NewEndpoint(data(t, 9, false)))
			return err
		}},
		{"fifo depth", errors.KindInvalidDepth, func(t *testing.T) error {
			_, err := stream.NewSyncFIFO(data(t, 8, false), 0, false)
			return err
		}},
		{"async fifo depth", errors.KindInvalidDepth, func(t *testing.T) error {
			_, err := stream.NewAsyncFIFO(data(t, 8, false), 6, "a", "b")
			return err
		}},
		{"mux ports", errors.KindInvalidInput, func(t *testing.T) error {
			_, err := stream.NewMultiplexer(data(t, 8, false), 0)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.make(t)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
			if !errors.IsConfiguration(err) {
				t.Errorf("error %v is not a configuration error", err)
			}
		})
	}
}
