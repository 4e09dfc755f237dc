package soc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/gateware/errors"
)

func TestParseController(t *testing.T) {
	for _, s := range []string{"lasmicon", "minicon"} {
		c, err := ParseController(s)
		if err != nil || string(c) != s {
			t.Errorf("ParseController(%q) = %q, %v", s, c, err)
		}
	}
	_, err := ParseController("wishbone")
	if !errors.IsKind(err, errors.KindUnsupported) || !errors.IsConfiguration(err) {
		t.Errorf("ParseController(wishbone) = %v", err)
	}
}

func TestMainRAMSize(t *testing.T) {
	tests := []struct {
		name string
		cfg  SDRAMConfig
		want uint64
	}{
		{
			name: "sdr 16 bit",
			cfg:  SDRAMConfig{Controller: Minicon, MemType: "SDR", DFIDataBits: 16, BankBits: 2, RowBits: 12, ColBits: 8},
			want: 1 << 22 * 2,
		},
		{
			name: "ddr halves dfi width",
			cfg:  SDRAMConfig{Controller: LASMIcon, MemType: "DDR", DFIDataBits: 64, BankBits: 2, RowBits: 13, ColBits: 10},
			want: 1 << 25 * 4,
		},
		{
			name: "capped",
			cfg:  SDRAMConfig{Controller: LASMIcon, MemType: "DDR3", DFIDataBits: 128, BankBits: 3, RowBits: 15, ColBits: 10},
			want: MaxMainRAMSize,
		},
		{
			name: "capped without wrapping",
			cfg:  SDRAMConfig{Controller: Minicon, MemType: "SDR", DFIDataBits: 1 << 40, BankBits: 8, RowBits: 24, ColBits: 16},
			want: MaxMainRAMSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err != nil {
				t.Fatal(err)
			}
			if got := tt.cfg.MainRAMSize(); got != tt.want {
				t.Errorf("MainRAMSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	zero := 0
	tests := []struct {
		name   string
		cfg    SDRAMConfig
		bridge Bridge
		l2     bool
	}{
		{"lasmicon", SDRAMConfig{Controller: LASMIcon, DFIDataBits: 32, RowBits: 12, ColBits: 8}, BridgeL2LASMI, true},
		{"minicon with l2", SDRAMConfig{Controller: Minicon, DFIDataBits: 32, RowBits: 12, ColBits: 8}, BridgeL2, true},
		{"minicon without l2", SDRAMConfig{Controller: Minicon, DFIDataBits: 32, RowBits: 12, ColBits: 8, L2Size: &zero}, BridgeConverter, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.cfg.Plan()
			if err != nil {
				t.Fatal(err)
			}
			if p.Bridge != tt.bridge {
				t.Errorf("bridge = %s, want %s", p.Bridge, tt.bridge)
			}
			if _, ok := p.Constants["L2_SIZE"]; ok != tt.l2 {
				t.Errorf("L2_SIZE constant present = %v", ok)
			}
			if p.Crossbar != (tt.cfg.Controller == LASMIcon) {
				t.Errorf("crossbar = %v", p.Crossbar)
			}
		})
	}

	cfg := SDRAMConfig{Controller: LASMIcon, DFIDataBits: 32, L2Size: &zero}
	if _, err := cfg.Plan(); !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("lasmicon without l2 = %v", err)
	}
}

func TestLoadSDRAMConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sdram.yaml")
	doc := "controller: minicon\nmemtype: SDR\ndfi_databits: 16\nbankbits: 2\nrowbits: 12\ncolbits: 8\nl2_size: 0\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSDRAMConfig(path)
	if err != nil {
		t.Fatalf("LoadSDRAMConfig: %v", err)
	}
	if cfg.Controller != Minicon || cfg.Width() != 16 || cfg.L2() != 0 {
		t.Errorf("cfg = %+v", cfg)
	}

	_, err = LoadSDRAMConfig(filepath.Join(dir, "missing.yaml"))
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("missing file = %v", err)
	}
}

func TestParseSDRAMConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"controller", "controller: dramctl\ndfi_databits: 16\n", errors.KindUnsupported},
		{"syntax", "controller: [minicon\n", errors.KindInvalidData},
		{"width", "controller: minicon\nmemtype: DDR\ndfi_databits: 12\n", errors.KindInvalidWidth},
		{"geometry", "controller: minicon\ndfi_databits: 16\nrowbits: 40\n", errors.KindOutOfRange},
		{"l2", "controller: minicon\ndfi_databits: 16\nl2_size: -1\n", errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSDRAMConfig([]byte(tt.doc))
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("ParseSDRAMConfig = %v, want %s", err, tt.kind)
			}
		})
	}
}
