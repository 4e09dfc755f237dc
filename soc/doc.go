// Package soc sizes and plans the SDRAM subsystem of a system-on-chip.
//
// An SDRAMConfig names the memory controller and the PHY/module geometry,
// usually loaded from YAML:
//
//	controller: lasmicon
//	memtype: DDR3
//	dfi_databits: 64
//	bankbits: 3
//	rowbits: 14
//	colbits: 10
//	l2_size: 8192
//
// Plan derives the main RAM size and the bridges needed between the
// system bus and the controller.
package soc
