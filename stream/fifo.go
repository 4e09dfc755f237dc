package stream

import (
	"math/bits"

	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/layout"
	"github.com/wippyai/gateware/sim"
)

// ring is fixed-capacity FIFO storage.
type ring struct {
	buf   []Beat
	head  int
	count int
}

func newRing(depth int) ring { return ring{buf: make([]Beat, depth)} }

func (r *ring) full() bool  { return r.count == len(r.buf) }
func (r *ring) empty() bool { return r.count == 0 }
func (r *ring) peek() Beat  { return r.buf[r.head] }

func (r *ring) push(b Beat) {
	r.buf[(r.head+r.count)%len(r.buf)] = b
	r.count++
}

func (r *ring) pop() Beat {
	b := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return b
}

func (r *ring) reset() {
	clear(r.buf)
	r.head, r.count = 0, 0
}

// SyncFIFO buffers a stream within one clock domain. Payload and packet
// markers are stored together and leave in arrival order.
//
// An unbuffered FIFO offers its head combinationally: a beat written on one
// tick is readable on the next. A buffered FIFO adds an output register,
// holding one more beat at the cost of one more tick of latency.
type SyncFIFO struct {
	Sink     *Endpoint
	Source   *Endpoint
	desc     *layout.Layout
	store    ring
	out      Beat
	buffered bool
}

func NewSyncFIFO(desc *layout.Layout, depth int, buffered bool) (*SyncFIFO, error) {
	if depth < 1 {
		return nil, errors.InvalidDepth([]string{"fifo"}, depth, "must be at least 1")
	}
	f := &SyncFIFO{
		Sink:     NewEndpoint(desc),
		Source:   NewEndpoint(desc),
		desc:     desc,
		store:    newRing(depth),
		buffered: buffered,
	}
	f.out = Beat{Payload: desc.Zero()}
	Logger().Debug("sync fifo elaborated",
		zap.Stringer("layout", desc),
		zap.Int("depth", depth),
		zap.Bool("buffered", buffered))
	return f, nil
}

func (f *SyncFIFO) head() Beat {
	if f.buffered {
		return f.out
	}
	if f.store.empty() {
		return Beat{Payload: f.desc.Zero()}
	}
	b := f.store.peek()
	b.Valid = true
	return b
}

func (f *SyncFIFO) Eval() bool {
	changed := f.Source.Drive(f.head())
	if f.Sink.SetReady(!f.store.full()) {
		changed = true
	}
	return changed
}

func (f *SyncFIFO) Commit() {
	push := f.Sink.Fired()
	var in Beat
	if push {
		in = f.Sink.Beat()
	}
	if f.buffered {
		if !f.out.Valid || f.Source.Ready() {
			if f.store.empty() {
				f.out.Valid = false
			} else {
				f.out = f.store.pop()
				f.out.Valid = true
			}
		}
	} else if f.Source.Fired() {
		f.store.pop()
	}
	if push {
		f.store.push(in)
	}
}

func (f *SyncFIFO) Reset() {
	f.store.reset()
	f.out = Beat{Payload: f.desc.Zero()}
}

// Depth returns the storage depth, not counting the output register.
func (f *SyncFIFO) Depth() int { return len(f.store.buf) }

// Level returns the number of beats held, including the output register.
func (f *SyncFIFO) Level() int {
	n := f.store.count
	if f.buffered && f.out.Valid {
		n++
	}
	return n
}

func gray(v uint) uint { return v ^ (v >> 1) }

func ungray(g uint) uint {
	v := g
	for s := uint(1); s < bits.UintSize; s <<= 1 {
		v ^= v >> s
	}
	return v
}

// AsyncFIFO carries a stream between two clock domains. Each side keeps its
// own pointer and sees the other side's pointer through a two-stage
// synchronizer, so space and occupancy are reported conservatively.
type AsyncFIFO struct {
	Sink    *Endpoint
	Source  *Endpoint
	desc    *layout.Layout
	buf     []Beat
	writer  *fifoWriter
	reader  *fifoReader
	wdomain string
	rdomain string
}

// NewAsyncFIFO creates a FIFO written in wdomain and read in rdomain.
// Depth must be a power of two, at least 2.
func NewAsyncFIFO(desc *layout.Layout, depth int, wdomain, rdomain string) (*AsyncFIFO, error) {
	if depth < 2 || depth&(depth-1) != 0 {
		return nil, errors.InvalidDepth([]string{"async_fifo"}, depth, "must be a power of two, at least 2")
	}
	f := &AsyncFIFO{
		Sink:    NewEndpoint(desc),
		Source:  NewEndpoint(desc),
		desc:    desc,
		buf:     make([]Beat, depth),
		wdomain: wdomain,
		rdomain: rdomain,
	}
	f.writer = &fifoWriter{f: f}
	f.reader = &fifoReader{f: f}
	Logger().Debug("async fifo elaborated",
		zap.Stringer("layout", desc),
		zap.Int("depth", depth),
		zap.String("write_domain", wdomain),
		zap.String("read_domain", rdomain))
	return f, nil
}

// Register adds the write side to the write domain and the read side to
// the read domain of c.
func (f *AsyncFIFO) Register(c *sim.Circuit) error {
	if err := c.AddTo(f.wdomain, f.writer); err != nil {
		return err
	}
	return c.AddTo(f.rdomain, f.reader)
}

func (f *AsyncFIFO) Writer() sim.Component { return f.writer }
func (f *AsyncFIFO) Reader() sim.Component { return f.reader }
func (f *AsyncFIFO) Depth() int            { return len(f.buf) }

// Level returns the true occupancy. Neither side observes it directly.
func (f *AsyncFIFO) Level() int {
	return int(f.wrap(f.writer.ptr - f.reader.ptr))
}

func (f *AsyncFIFO) Reset() {
	clear(f.buf)
	*f.writer = fifoWriter{f: f}
	*f.reader = fifoReader{f: f}
}

// pointers count modulo twice the depth, so full and empty differ.
func (f *AsyncFIFO) wrap(p uint) uint { return p & uint(2*len(f.buf)-1) }

type fifoWriter struct {
	f         *AsyncFIFO
	ptr       uint
	published uint    // gray-coded ptr as seen by the read side
	sync      [2]uint // read pointer synchronizer, gray-coded
}

func (w *fifoWriter) Eval() bool {
	changed := sim.Set(&w.published, gray(w.ptr))
	used := w.f.wrap(w.ptr - ungray(w.sync[1]))
	if w.f.Sink.SetReady(int(used) < len(w.f.buf)) {
		changed = true
	}
	return changed
}

func (w *fifoWriter) Commit() {
	if w.f.Sink.Fired() {
		w.f.buf[w.ptr%uint(len(w.f.buf))] = w.f.Sink.Beat()
		w.ptr = w.f.wrap(w.ptr + 1)
	}
	w.sync[1], w.sync[0] = w.sync[0], w.f.reader.published
}

type fifoReader struct {
	f         *AsyncFIFO
	ptr       uint
	published uint
	sync      [2]uint // write pointer synchronizer, gray-coded
}

func (r *fifoReader) Eval() bool {
	changed := sim.Set(&r.published, gray(r.ptr))
	b := Beat{Payload: r.f.desc.Zero()}
	if r.ptr != ungray(r.sync[1]) {
		b = r.f.buf[r.ptr%uint(len(r.f.buf))]
		b.Valid = true
	}
	if r.f.Source.Drive(b) {
		changed = true
	}
	return changed
}

func (r *fifoReader) Commit() {
	if r.f.Source.Fired() {
		r.ptr = r.f.wrap(r.ptr + 1)
	}
	r.sync[1], r.sync[0] = r.sync[0], r.f.writer.published
}
