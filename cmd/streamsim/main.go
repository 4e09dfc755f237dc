package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/gateware/csr"
	"github.com/wippyai/gateware/dma"
	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/kernel"
	"github.com/wippyai/gateware/phy"
	"github.com/wippyai/gateware/sim"
	"github.com/wippyai/gateware/soc"
	"github.com/wippyai/gateware/stream"
)

var log = zap.NewNop()

type options struct {
	scenario    string
	sdram       string
	csrMap      string
	metricsAddr string
	flags       Scenario
	fifo        FIFOConfig
	kernel      KernelConfig
	payload     PayloadConfig
	busword     int
	sweep       int
	verbose     bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.scenario, "scenario", "", "Path to a YAML scenario (overrides the stream flags)")
	flag.StringVar(&o.flags.Kind, "kind", KindConvert, "Scenario kind: convert, dma, mii or loopback")
	flag.IntVar(&o.flags.From, "from", 16, "Input data width in bits")
	flag.IntVar(&o.flags.To, "to", 8, "Output data width in bits")
	flag.BoolVar(&o.flags.Reverse, "reverse", false, "Emit the least significant chunk first")
	flag.BoolVar(&o.flags.Packetized, "packetized", false, "Carry start and end of packet markers")
	flag.IntVar(&o.flags.Packet, "packet", 0, "Beats per packet (0 for a single packet)")
	flag.IntVar(&o.flags.Beats, "beats", 16, "Number of input beats")
	flag.BoolVar(&o.flags.RoundTrip, "round-trip", false, "Convert back to the input width and compare")
	flag.IntVar(&o.flags.ValidEvery, "valid-every", 1, "Offer input on one tick out of n")
	flag.IntVar(&o.flags.ReadyEvery, "ready-every", 1, "Accept output on one tick out of n")
	flag.IntVar(&o.flags.Latency, "latency", 2, "DMA read latency in ticks")
	flag.StringVar(&o.fifo.Kind, "fifo", "", "Insert a FIFO after the converter: sync or async")
	flag.IntVar(&o.fifo.Depth, "depth", 4, "FIFO depth")
	flag.BoolVar(&o.fifo.Buffered, "buffered", false, "Register the sync FIFO output")
	flag.IntVar(&o.fifo.ReadPeriod, "read-period", 3, "Async FIFO read clock period in ticks")
	flag.StringVar(&o.payload.WIT, "wit", "", "WIT JSON file declaring the converter payload records")
	flag.StringVar(&o.payload.From, "wit-from", "", "WIT record for the input payload")
	flag.StringVar(&o.payload.To, "wit-to", "", "WIT record for the output payload")
	flag.StringVar(&o.kernel.Path, "kernel", "", "WebAssembly module mapping each converted beat")
	flag.StringVar(&o.kernel.Export, "export", "map", "Kernel export to call")
	flag.IntVar(&o.sweep, "sweep", 0, "Round trip every width pair up to n bits and exit")
	flag.StringVar(&o.sdram, "sdram", "", "Validate an SDRAM YAML config and print its plan")
	flag.StringVar(&o.csrMap, "csr", "", "Load a CSR map (name,address,length,mode) and print it")
	flag.IntVar(&o.busword, "busword", 32, "CSR bus word width")
	flag.StringVar(&o.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) error {
	if !verbose {
		return nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	log = l
	sim.SetLogger(l)
	stream.SetLogger(l)
	kernel.SetLogger(l)
	dma.SetLogger(l)
	phy.SetLogger(l)
	csr.SetLogger(l)
	soc.SetLogger(l)
	return nil
}

func run(o options) error {
	if err := setupLogging(o.verbose); err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.sdram != "" {
		if err := printSDRAM(o.sdram); err != nil {
			return err
		}
	}
	if o.csrMap != "" {
		if err := printCSR(o.csrMap, o.busword); err != nil {
			return err
		}
	}
	if (o.sdram != "" || o.csrMap != "") && o.scenario == "" && o.sweep == 0 {
		return nil
	}

	var metrics *sim.Metrics
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := sim.NewMetrics(reg)
		if err != nil {
			return err
		}
		metrics = m
		srv := serveMetrics(o.metricsAddr, reg)
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
	}

	if o.sweep > 0 {
		results, err := sweep(ctx, o.sweep, o.flags.Beats, metrics)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			fmt.Println(r)
			if !r.OK {
				failed++
			}
		}
		if failed > 0 {
			return errors.New(errors.PhaseSimulate, errors.KindInvalidData).
				Detail("%d of %d width pairs failed to round trip", failed, len(results)).
				Build()
		}
		return hold(ctx, o.metricsAddr)
	}

	s, err := o.load()
	if err != nil {
		return err
	}

	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.InvalidInput(errors.PhaseConfig, "interactive mode needs a terminal")
		}
		return runInteractive(ctx, s, metrics)
	}

	r, err := s.Run(ctx, metrics)
	if err != nil {
		return err
	}
	fmt.Println(r)
	if r.Plan != nil {
		printPlan(r.Plan)
	}
	if r.Checked && !r.OK {
		return errors.New(errors.PhaseSimulate, errors.KindInvalidData).
			Path("scenario", s.Name).
			Detail("output does not match input").
			Build()
	}
	return hold(ctx, o.metricsAddr)
}

// load returns the YAML scenario if one was given, otherwise the one
// described by flags.
func (o options) load() (*Scenario, error) {
	if o.scenario != "" {
		return LoadScenario(o.scenario)
	}
	s := o.flags
	if o.fifo.Kind != "" {
		fifo := o.fifo
		s.FIFO = &fifo
	}
	if o.kernel.Path != "" {
		k := o.kernel
		s.Kernel = &k
	}
	if o.payload.WIT != "" {
		p := o.payload
		s.Payload = &p
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// hold keeps the metrics endpoint up after a run until interrupted.
func hold(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	fmt.Fprintf(os.Stderr, "metrics on http://%s/metrics, interrupt to exit\n", addr)
	<-ctx.Done()
	return nil
}

func printSDRAM(path string) error {
	cfg, err := soc.LoadSDRAMConfig(path)
	if err != nil {
		return err
	}
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	printPlan(plan)
	return nil
}

func printPlan(p *soc.Plan) {
	fmt.Printf("SDRAM controller: %s\n", p.Controller)
	fmt.Printf("  bridge:        %s\n", p.Bridge)
	fmt.Printf("  main ram size: %#x\n", p.MainRAMSize)
	fmt.Printf("  l2 size:       %d\n", p.L2Size)
	fmt.Printf("  crossbar:      %v\n", p.Crossbar)
	keys := make([]string, 0, len(p.Constants))
	for k := range p.Constants {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("  #define %s %d\n", k, p.Constants[k])
	}
}

func printCSR(path string, busword int) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open "+path)
	}
	defer f.Close()
	m, err := csr.ParseMap(f, busword, csr.NewMemoryBus(busword))
	if err != nil {
		return err
	}
	fmt.Printf("CSR map: %s (%d-bit bus)\n", path, busword)
	for _, name := range m.Names() {
		reg, err := m.Reg(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-24s %#010x  %2d word(s)  %s\n", reg.Name, reg.Address, reg.Length, reg.Mode)
	}
	return nil
}
