package emu

// Default memory map of the emulator and linker.
const (
	// DefaultEntry is the ROM base and entry point.
	DefaultEntry uint32 = 0x10000000
	// DefaultDataAddr is the base of the work RAM / .data region.
	DefaultDataAddr uint32 = 0x20000000
	// DefaultDataSize is the size of the work RAM region.
	DefaultDataSize uint32 = 0x04000000
	// DefaultInputAddr is the memory-mapped input port.
	DefaultInputAddr uint32 = 0x30000000
	// DefaultOutputAddr is the memory-mapped output port.
	DefaultOutputAddr uint32 = 0x30000004
)
