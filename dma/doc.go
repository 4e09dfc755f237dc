// Package dma moves stream data to and from a word-addressed memory.
//
// A Port is the memory request interface between one master and one slave.
// The master raises Stb with an address (and We for writes); the slave
// accepts the request with ReqAck. Read data returns later with DatRAck;
// write data is taken from the master when the slave raises DatWAck.
// Responses come back in request order.
//
// Reader turns a stream of addresses into a stream of data words. It counts
// reservations so that every response it requested has room in its FIFO:
// a reservation is taken when a request is issued and released only when the
// data word leaves the reader, never on issue alone.
//
// Writer turns a stream of (address, data) pairs into write requests,
// queueing the data until the slave asks for it.
//
// Memory is a simulated slave with a bounded request queue and fixed read
// and write latencies.
package dma
