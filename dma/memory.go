package dma

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/sim"
)

type request struct {
	adr  uint64
	wait int
	we   bool
}

// Memory is a simulated slave answering requests in order after a fixed
// latency.
type Memory struct {
	port  *Port
	words map[uint64]uint64
	queue []request
	reads int
	wrote int
}

func NewMemory(port *Port) *Memory {
	return &Memory{port: port, words: make(map[uint64]uint64)}
}

// Peek returns the word at adr. Unwritten words read as zero.
func (m *Memory) Peek(adr uint64) uint64 { return m.words[adr] }

// Poke stores v at adr, truncated to the data width.
func (m *Memory) Poke(adr, v uint64) {
	m.words[adr] = v & m.dataMask()
}

// Load pokes consecutive words starting at base.
func (m *Memory) Load(base uint64, words ...uint64) {
	for i, v := range words {
		m.Poke(base+uint64(i), v)
	}
}

// Stats returns the number of reads and writes completed.
func (m *Memory) Stats() (reads, writes int) { return m.reads, m.wrote }

func (m *Memory) dataMask() uint64 {
	if m.port.Config.DataWidth == 64 {
		return ^uint64(0)
	}
	return 1<<m.port.Config.DataWidth - 1
}

// ready reports whether the head request completes on this tick.
func (m *Memory) ready() (request, bool) {
	if len(m.queue) == 0 || m.queue[0].wait > 0 {
		return request{}, false
	}
	return m.queue[0], true
}

func (m *Memory) Eval() bool {
	p := m.port
	head, done := m.ready()
	var datR uint64
	if done && !head.we {
		datR = m.words[head.adr]
	}
	changed := false
	for _, ch := range []bool{
		sim.Set(&p.ReqAck, len(m.queue) < p.Config.QueueSize),
		sim.Set(&p.DatRAck, done && !head.we),
		sim.Set(&p.DatR, datR),
		sim.Set(&p.DatWAck, done && head.we),
	} {
		changed = changed || ch
	}
	return changed
}

func (m *Memory) Commit() {
	p := m.port
	if head, done := m.ready(); done {
		if head.we {
			m.words[head.adr] = merge(m.words[head.adr], p.DatW, p.DatWe) & m.dataMask()
			m.wrote++
		} else {
			m.reads++
		}
		m.queue = m.queue[1:]
	}
	for i := range m.queue {
		if m.queue[i].wait > 0 {
			m.queue[i].wait--
		}
	}
	if p.Issued() {
		wait := p.Config.ReadLatency
		if p.We {
			wait = p.Config.WriteLatency
		}
		m.queue = append(m.queue, request{adr: p.Adr, we: p.We, wait: wait})
	}
}

func (m *Memory) Reset() {
	m.queue = nil
	m.reads, m.wrote = 0, 0
	Logger().Debug("memory reset", zap.Int("words", len(m.words)))
}

// merge replaces the bytes of old selected by the byte enables in we.
func merge(old, v, we uint64) uint64 {
	for b := range 8 {
		if we&(1<<b) == 0 {
			continue
		}
		mask := uint64(0xFF) << (8 * b)
		old = old&^mask | v&mask
	}
	return old
}
