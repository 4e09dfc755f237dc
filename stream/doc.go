// Package stream implements a valid/ready streaming protocol and the
// components that compose it.
//
// An Endpoint is one producer-to-consumer channel. The producer drives valid,
// the payload and, on packetized layouts, start/end-of-packet markers; the
// consumer drives ready. A beat transfers on a tick iff valid and ready both
// hold, and a producer that sees valid && !ready must hold its payload and
// markers unchanged on the following ticks.
//
// # Components
//
//	Wire           direct connection, zero latency
//	Chunkerize     wide fields split into n chunks (combinational)
//	Unchunkerize   n chunks merged into wide fields (combinational)
//	Pack           n narrow beats accumulated into one wide beat
//	Unpack         one wide beat emitted as n narrow beats
//	Converter      width bridge built from the above
//	Multiplexer    one of n sinks routed to a source
//	Demultiplexer  a sink routed to one of n sources
//	SyncFIFO       single clock domain queue
//	AsyncFIFO      queue between two clock domains
//	Checker        reports handshake rule violations (test aid)
//	Probe          records transfers and counts them in metrics
//
// Every component implements sim.Component and is added to a sim.Circuit.
//
// # Chunk Order
//
// When a wide field is split into n chunks, chunk 0 is the most significant
// slice and is transferred first. With reverse set, chunk 0 is the least
// significant slice. A Converter from {data:16} to {data:8} therefore emits
// 0xAB then 0xCD for the wide beat 0xABCD, and 0xCD then 0xAB when reversed.
//
// # Pack and Unpack State Machines
//
// PackFSM and UnpackFSM are plain values with pure transition functions, so
// their behavior can be exercised without a circuit:
//
//	fsm := stream.NewPackFSM(8, 2, false, true)
//	s := fsm.Reset()
//	s, out := fsm.Step(s, beat, true)
package stream
