package cache

import (
	"github.com/p2k/solomips/emu"
)

// RAMBacking wraps the emulator's mapper chain as a BackingStore.
// Addresses no mapper claims read as zero; the model must not fault
// where the architectural access already succeeded.
type RAMBacking struct {
	ram *emu.RAM
}

// NewRAMBacking creates a BackingStore over ram.
func NewRAMBacking(ram *emu.RAM) *RAMBacking {
	return &RAMBacking{ram: ram}
}

// Read fetches a block from the mapper chain byte by byte.
func (b *RAMBacking) Read(addr uint32, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		v, err := b.ram.LoadByte(addr + uint32(i))
		if err != nil {
			continue
		}
		data[i] = v
	}
	return data
}

// Write stores a block to the mapper chain byte by byte.
func (b *RAMBacking) Write(addr uint32, data []byte) {
	for i, v := range data {
		_ = b.ram.StoreByte(addr+uint32(i), v)
	}
}
