package csr

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
)

// Mode is a register access mode.
type Mode string

const (
	ReadWrite Mode = "rw"
	ReadOnly  Mode = "ro"
	WriteOnly Mode = "wo"
)

func (m Mode) Readable() bool { return m == ReadWrite || m == ReadOnly }
func (m Mode) Writable() bool { return m == ReadWrite || m == WriteOnly }

// ParseMode accepts rw, ro or wo.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ReadWrite, ReadOnly, WriteOnly:
		return m, nil
	default:
		return "", errors.Unsupported(errors.PhaseConfig, "register mode "+strconv.Quote(s))
	}
}

// Reg is one mapped register.
type Reg struct {
	bus     Bus
	Name    string
	Mode    Mode
	Address uint64
	Length  int
	busword int
}

// Read reads all words of the register and combines them, most
// significant word first.
func (r *Reg) Read() (uint64, error) {
	if !r.Mode.Readable() {
		return 0, errors.AccessDenied(r.Name, string(r.Mode), "readable")
	}
	words, err := r.bus.ReadBurst(r.Address, r.Length)
	if err != nil {
		return 0, errors.New(errors.PhaseBus, errors.KindInvalidData).
			Path(r.Name).
			Cause(err).
			Detail("read burst at %#x", r.Address).
			Build()
	}
	if len(words) != r.Length {
		return 0, errors.New(errors.PhaseBus, errors.KindInvalidData).
			Path(r.Name).
			Detail("bus returned %d words, want %d", len(words), r.Length).
			Build()
	}
	var v uint64
	for _, w := range words {
		v = v<<r.busword | w&wordMask(r.busword)
	}
	return v, nil
}

// Write splits v into the register's words, most significant first.
func (r *Reg) Write(v uint64) error {
	if !r.Mode.Writable() {
		return errors.AccessDenied(r.Name, string(r.Mode), "writable")
	}
	words := make([]uint64, r.Length)
	for i := range words {
		words[i] = v >> ((r.Length - 1 - i) * r.busword) & wordMask(r.busword)
	}
	if err := r.bus.Write(r.Address, words); err != nil {
		return errors.New(errors.PhaseBus, errors.KindInvalidData).
			Path(r.Name).
			Cause(err).
			Detail("write burst at %#x", r.Address).
			Build()
	}
	return nil
}

func wordMask(busword int) uint64 {
	if busword >= 64 {
		return ^uint64(0)
	}
	return 1<<busword - 1
}

// Map is a set of registers on one bus.
type Map struct {
	bus     Bus
	regs    map[string]*Reg
	names   []string
	busword int
}

// ParseMap reads a register table. Every register must fit in 64 bits.
func ParseMap(r io.Reader, busword int, bus Bus) (*Map, error) {
	if busword < 1 || busword > 64 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidWidth).
			Path("busword").
			Value(busword).
			Detail("bus word %d outside [1, 64]", busword).
			Build()
	}
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	m := &Map{bus: bus, regs: make(map[string]*Reg), busword: busword}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseFailed("register map", err)
		}
		reg, err := m.parseRow(rec)
		if err != nil {
			return nil, err
		}
		if _, dup := m.regs[reg.Name]; dup {
			return nil, errors.New(errors.PhaseConfig, errors.KindDuplicateName).
				Path("csr", reg.Name).
				Value(reg.Name).
				Detail("register defined twice").
				Build()
		}
		m.regs[reg.Name] = reg
		m.names = append(m.names, reg.Name)
	}
	Logger().Debug("register map parsed",
		zap.Int("registers", len(m.names)),
		zap.Int("busword", busword))
	return m, nil
}

func (m *Map) parseRow(rec []string) (*Reg, error) {
	name := strings.TrimSpace(rec[0])
	if name == "" {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Detail("register with empty name").
			Build()
	}
	addrText := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(rec[1])), "0x")
	addr, err := strconv.ParseUint(addrText, 16, 64)
	if err != nil {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Path(name, "address").
			Cause(err).
			Detail("address %q is not hexadecimal", rec[1]).
			Build()
	}
	length, err := strconv.Atoi(strings.TrimSpace(rec[2]))
	if err != nil || length < 1 {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Path(name, "length").
			Detail("length %q must be a positive integer", rec[2]).
			Build()
	}
	if length > 64/m.busword {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidWidth).
			Path(name).
			Detail("%d words of %d bits exceed 64 bits", length, m.busword).
			Build()
	}
	mode, err := ParseMode(strings.TrimSpace(rec[3]))
	if err != nil {
		return nil, err
	}
	return &Reg{
		bus:     m.bus,
		Name:    name,
		Mode:    mode,
		Address: addr,
		Length:  length,
		busword: m.busword,
	}, nil
}

// Reg returns the named register.
func (m *Map) Reg(name string) (*Reg, error) {
	r, ok := m.regs[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseBus, "register", name)
	}
	return r, nil
}

// Names returns the register names in table order.
func (m *Map) Names() []string { return m.names }

// Read reads the named register.
func (m *Map) Read(name string) (uint64, error) {
	r, err := m.Reg(name)
	if err != nil {
		return 0, err
	}
	return r.Read()
}

// Write writes the named register.
func (m *Map) Write(name string, v uint64) error {
	r, err := m.Reg(name)
	if err != nil {
		return err
	}
	return r.Write(v)
}
