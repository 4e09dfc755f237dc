package csr

import (
	"sync"

	"github.com/wippyai/gateware/errors"
)

// Bus moves whole words to and from register addresses.
type Bus interface {
	ReadBurst(addr uint64, length int) ([]uint64, error)
	Write(addr uint64, words []uint64) error
}

// MemoryBus is an in-memory Bus. Consecutive words of a burst are Stride
// addresses apart.
type MemoryBus struct {
	words   map[uint64]uint64
	Stride  uint64
	mu      sync.Mutex
	busword int
}

// NewMemoryBus creates a bus of busword-bit words, four addresses apart.
func NewMemoryBus(busword int) *MemoryBus {
	return &MemoryBus{
		words:   make(map[uint64]uint64),
		Stride:  4,
		busword: busword,
	}
}

func (b *MemoryBus) mask() uint64 {
	if b.busword >= 64 {
		return ^uint64(0)
	}
	return 1<<b.busword - 1
}

func (b *MemoryBus) ReadBurst(addr uint64, length int) ([]uint64, error) {
	if length < 1 {
		return nil, errors.New(errors.PhaseBus, errors.KindInvalidInput).
			Detail("burst length %d", length).
			Build()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, length)
	for i := range out {
		out[i] = b.words[addr+uint64(i)*b.Stride]
	}
	return out, nil
}

func (b *MemoryBus) Write(addr uint64, words []uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range words {
		b.words[addr+uint64(i)*b.Stride] = w & b.mask()
	}
	return nil
}

// Word returns the raw word at addr.
func (b *MemoryBus) Word(addr uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.words[addr]
}
