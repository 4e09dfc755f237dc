// Package gateware provides a cycle-level model of a streaming data fabric:
// valid/ready endpoints carrying structured payloads, and the blocks that
// move data between them.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	gateware/
//	├── layout/          Payload layouts: named, nested bit fields
//	├── sim/             Tick engine: combinational settle, then commit
//	├── stream/          Endpoints, converters, multiplexers and FIFOs
//	│   └── streamtest/  Drivers and monitors with stall patterns
//	├── kernel/          WebAssembly exports applied to stream beats
//	├── dma/             Bus master reading and writing memory from streams
//	├── phy/             MII transmit and receive over a nibble interface
//	├── csr/             Control and status registers over a word bus
//	├── soc/             SDRAM subsystem configuration
//	├── errors/          Structured error types
//	└── cmd/streamsim/   Scenario runner with an interactive stepper
//
// # Quick Start
//
// Convert a 16-bit stream into bytes:
//
//	from := layout.Must(layout.New([]layout.Field{layout.Bits("data", 16)}, false))
//	to := layout.Must(layout.New([]layout.Field{layout.Bits("data", 8)}, false))
//
//	conv, err := stream.NewConverter(from, to, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c := sim.NewCircuit()
//	c.Add(conv)
//	// connect producers to conv.Sink and consumers to conv.Source
//	if err := c.Run(10); err != nil {
//	    log.Fatal(err)
//	}
//
// # Timing
//
// Every tick first settles all combinational outputs to a fixed point, then
// commits registered state in every component whose clock domain has an
// edge. A transfer happens on a tick where an endpoint is both valid and
// ready after settling.
//
// # Errors
//
// Elaboration and simulation errors are *errors.Error values carrying a
// phase, a kind and the path of the offending element:
//
//	_, err := stream.NewConverter(from, to, false)
//	if errors.IsKind(err, errors.KindWidthRatio) {
//	    // widths are not integer multiples of each other
//	}
package gateware
