// Package sim runs synchronous circuits one clock tick at a time.
//
// A circuit is a set of components. Each tick has two phases:
//
//	settle  - every component recomputes its combinational outputs from its
//	          registered state and current inputs, repeated until nothing changes
//	commit  - every component whose clock domain has an edge latches its next
//	          state from the settled signals
//
// Commit never drives signals, so all registered updates in a tick are
// simultaneous and no component observes a partial tick. There is no
// concurrency and nothing blocks: backpressure is only a ready signal.
//
// # Clock Domains
//
// Components join the default "sys" domain with Add. Further domains are
// declared with a period and phase in ticks:
//
//	c := sim.NewCircuit()
//	c.AddDomain("eth_rx", 3, 1)  // edge on ticks 1, 4, 7, ...
//	c.AddTo("eth_rx", rxSide)
//
// Combinational settling always covers every component regardless of domain.
//
// # Metrics
//
// NewCircuit accepts WithMetrics to export tick counts, settle passes and
// per-endpoint transfer counts to a Prometheus registry.
package sim
