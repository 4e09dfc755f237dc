package soc

import (
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/gateware/errors"
)

// MaxMainRAMSize caps the main RAM region of the memory map.
const MaxMainRAMSize = 256 * 1024 * 1024

// DefaultL2Size is the L2 cache size in bytes when none is configured.
const DefaultL2Size = 8192

// CSR bank numbers of the SDRAM subsystem.
var CSRMap = map[string]int{
	"sdram":    8,
	"l2_cache": 9,
}

// Controller is an SDRAM controller type.
type Controller string

const (
	LASMIcon Controller = "lasmicon"
	Minicon  Controller = "minicon"
)

// ParseController accepts lasmicon or minicon.
func ParseController(s string) (Controller, error) {
	switch c := Controller(s); c {
	case LASMIcon, Minicon:
		return c, nil
	default:
		return "", errors.Unsupported(errors.PhaseConfig, "SDRAM controller type "+strconv.Quote(s))
	}
}

// UnmarshalYAML rejects unsupported controller names while decoding.
func (c *Controller) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseController(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SDRAMConfig describes an SDRAM PHY, module geometry and controller.
type SDRAMConfig struct {
	Controller  Controller `yaml:"controller"`
	MemType     string     `yaml:"memtype"`
	L2Size      *int       `yaml:"l2_size,omitempty"`
	DFIDataBits int        `yaml:"dfi_databits"`
	BankBits    int        `yaml:"bankbits"`
	RowBits     int        `yaml:"rowbits"`
	ColBits     int        `yaml:"colbits"`
}

// ParseSDRAMConfig decodes and validates a YAML SDRAM configuration.
func ParseSDRAMConfig(data []byte) (*SDRAMConfig, error) {
	var cfg SDRAMConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errors.ParseFailed("sdram config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSDRAMConfig reads an SDRAM configuration file.
func LoadSDRAMConfig(path string) (*SDRAMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	cfg, err := ParseSDRAMConfig(data)
	if err != nil {
		return nil, err
	}
	Logger().Debug("sdram config loaded",
		zap.String("path", path),
		zap.String("controller", string(cfg.Controller)))
	return cfg, nil
}

// Validate checks the controller and geometry.
func (c *SDRAMConfig) Validate() error {
	if _, err := ParseController(string(c.Controller)); err != nil {
		return err
	}
	if c.DFIDataBits < 1 {
		return errors.InvalidWidth([]string{"sdram", "dfi_databits"}, c.DFIDataBits)
	}
	if c.DFIDataBits%c.divisor() != 0 || c.Width()%8 != 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidWidth).
			Path("sdram", "dfi_databits").
			Value(c.DFIDataBits).
			Detail("%s width %d bits is not whole bytes", c.memType(), c.Width()).
			Build()
	}
	for _, g := range []struct {
		name string
		bits int
	}{{"bankbits", c.BankBits}, {"rowbits", c.RowBits}, {"colbits", c.ColBits}} {
		if g.bits < 0 || g.bits > 32 {
			return errors.New(errors.PhaseConfig, errors.KindOutOfRange).
				Path("sdram", g.name).
				Value(g.bits).
				Detail("%d address bits outside [0, 32]", g.bits).
				Build()
		}
	}
	if total := c.BankBits + c.RowBits + c.ColBits; total > 48 {
		return errors.New(errors.PhaseConfig, errors.KindOutOfRange).
			Path("sdram").
			Value(total).
			Detail("%d address bits in total, at most 48", total).
			Build()
	}
	if c.L2Size != nil && *c.L2Size < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("sdram", "l2_size").
			Detail("negative size %d", *c.L2Size).
			Build()
	}
	return nil
}

func (c *SDRAMConfig) memType() string {
	if c.MemType == "" {
		return "SDR"
	}
	return c.MemType
}

// SDR memories move data on one clock edge, everything else on two.
func (c *SDRAMConfig) divisor() int {
	if c.memType() == "SDR" {
		return 1
	}
	return 2
}

// Width returns the SDRAM data width in bits.
func (c *SDRAMConfig) Width() int { return c.DFIDataBits / c.divisor() }

// L2 returns the configured L2 cache size, DefaultL2Size when unset.
func (c *SDRAMConfig) L2() int {
	if c.L2Size == nil {
		return DefaultL2Size
	}
	return *c.L2Size
}

// MainRAMSize returns the addressable SDRAM size in bytes, capped at
// MaxMainRAMSize.
func (c *SDRAMConfig) MainRAMSize() uint64 {
	words := uint64(1) << (c.BankBits + c.RowBits + c.ColBits)
	wordBytes := uint64(c.Width()) / 8
	if wordBytes != 0 && words > MaxMainRAMSize/wordBytes {
		return MaxMainRAMSize
	}
	return words * wordBytes
}

// Bridge is the path from the system bus to the controller.
type Bridge string

const (
	BridgeL2LASMI   Bridge = "l2_cache+wishbone2lasmi"
	BridgeL2        Bridge = "l2_cache"
	BridgeConverter Bridge = "wishbone_converter"
)

// Plan is the derived SDRAM subsystem layout.
type Plan struct {
	Constants   map[string]uint64
	Controller  Controller
	Bridge      Bridge
	MainRAMSize uint64
	L2Size      int
	Crossbar    bool
}

// Plan derives the subsystem layout. A LASMIcon controller without an L2
// cache leaves the system bus unconnected, which is rejected.
func (c *SDRAMConfig) Plan() (*Plan, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p := &Plan{
		Constants:   make(map[string]uint64),
		Controller:  c.Controller,
		MainRAMSize: c.MainRAMSize(),
		L2Size:      c.L2(),
		Crossbar:    c.Controller == LASMIcon,
	}
	if p.L2Size > 0 {
		p.Constants["L2_SIZE"] = uint64(p.L2Size)
	}
	switch {
	case c.Controller == LASMIcon && p.L2Size > 0:
		p.Bridge = BridgeL2LASMI
	case c.Controller == LASMIcon:
		return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Path("sdram", "l2_size").
			Detail("lasmicon needs an L2 cache to reach the system bus").
			Build()
	case p.L2Size > 0:
		p.Bridge = BridgeL2
	default:
		p.Bridge = BridgeConverter
	}
	Logger().Debug("sdram planned",
		zap.String("controller", string(p.Controller)),
		zap.String("bridge", string(p.Bridge)),
		zap.Uint64("main_ram_size", p.MainRAMSize))
	return p, nil
}
