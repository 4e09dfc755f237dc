// Package phy provides Ethernet PHY front-ends that move 8-bit packetized
// streams over MII pads, plus a loopback PHY.
//
// MII carries one nibble per clock, low nibble first. The transmit side
// downconverts each byte and drives TxEn and TxData; the receive side
// registers RxData, upconverts nibble pairs back into bytes and derives the
// packet markers from RxDv: start of packet on the first nibble after RxDv
// rises, end of packet on the nibble sampled before RxDv falls.
package phy
