// Package csr reads and writes control/status registers by name.
//
// A register map is a CSV table with one register per row:
//
//	# name,address,length,mode
//	uart_rxtx,0xe0001000,1,rw
//	timer0_load,e0002000,4,wo
//
// Addresses are hexadecimal with an optional 0x prefix. Length counts bus
// words; a register's value is its words combined most significant first.
// Mode is rw, ro or wo.
package csr
