// Package main provides the entry point for the SoloMIPS emulator.
//
// The emulator loads a flat big-endian binary image at the ROM base,
// wires work RAM and the two memory-mapped I/O ports and runs the CPU
// until the program halts by jumping to address 0. The exit code is
// the low byte of r2 at halt, or a negative sentinel on fault.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/p2k/solomips/emu"
	"github.com/p2k/solomips/insts"
	"github.com/p2k/solomips/loader"
	"github.com/p2k/solomips/timing/cache"
)

var (
	disassemble = flag.Bool("d", false, "Print a disassembly of the image and exit")
	stats       = flag.Bool("stats", false, "Report instruction and cache statistics after the run")
	cacheConfig = flag.String("cache-config", "", "Path to cache configuration JSON file (implies -stats)")
	trace       = flag.Bool("trace", false, "Log every executed instruction (implies -v)")
	verbose     = flag.Bool("v", false, "Verbose output")
)

// Fault exit codes.
const (
	exitArithmetic = -10
	exitMemory     = -11
	exitInvalidOP  = -12
	exitUsage      = -20
	exitIO         = -21
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	if *verbose || *trace {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-d] <path>\n", os.Args[0])
		return exitUsage
	}
	path := flag.Arg(0)

	data, err := loader.ReadBinaryFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitIO
	}

	if *disassemble {
		if err := insts.Disassemble(data, emu.DefaultEntry, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitInvalidOP
		}
		return 0
	}

	// Prepare ROM, work RAM and the I/O ports
	rom := emu.NewArrayMapper(emu.DefaultEntry, data, emu.Readable|emu.Executable)
	wram := emu.NewZeroArrayMapper(emu.DefaultDataAddr, emu.DefaultDataSize, emu.Readable|emu.Writable)
	in := emu.NewInputMapper(emu.DefaultInputAddr, bufio.NewReader(os.Stdin))
	stdout := bufio.NewWriter(os.Stdout)
	out := emu.NewOutputMapper(emu.DefaultOutputAddr, stdout)

	cpu := emu.NewR3000(emu.DefaultEntry)
	cpu.RAM.AddMapper(rom)
	cpu.RAM.AddMapper(in)
	cpu.RAM.AddMapper(out)
	cpu.RAM.AddMapper(wram)

	logrus.WithFields(logrus.Fields{
		"path":  path,
		"size":  len(data),
		"entry": fmt.Sprintf("0x%08x", emu.DefaultEntry),
	}).Debug("Program loaded")

	var icache, dcache *cache.Cache
	var instructions uint64
	if *stats || *cacheConfig != "" {
		cfg := cache.DefaultFileConfig()
		if *cacheConfig != "" {
			cfg, err = cache.LoadConfig(*cacheConfig)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return exitIO
			}
		}
		icache = cache.New(*cfg.ICache, cache.NewRAMBacking(cpu.RAM))
		// No backing store: fills and writebacks of the data cache must
		// not touch emulator memory or the I/O ports.
		dcache = cache.New(*cfg.DCache, nil)
		cpu.FetchHook = func(addr uint32) {
			instructions++
			icache.Read(addr, 4)
		}
		cpu.LoadHook = func(addr uint32, size uint32) {
			dcache.Read(addr, int(size))
		}
		cpu.StoreHook = func(addr uint32, size uint32) {
			dcache.Write(addr, int(size))
		}
	}

	var runErr error
	if *trace {
		runErr = runTraced(cpu)
	} else {
		runErr = cpu.Run()
	}

	if err := stdout.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitIO
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		switch runErr.(type) {
		case *emu.ArithmeticError:
			return exitArithmetic
		case *emu.MemoryFaultError:
			return exitMemory
		case *emu.InvalidOPError, *emu.MisalignedPCError:
			return exitInvalidOP
		default:
			return exitUsage
		}
	}

	if icache != nil {
		printStats(instructions, icache, dcache)
	}

	return int(cpu.R[2] & 0xff)
}

// runTraced steps the CPU one cycle at a time and logs each retired
// instruction.
func runTraced(cpu *emu.R3000) error {
	for {
		if err := cpu.Step(); err != nil {
			if _, halted := err.(emu.HaltError); halted {
				return nil
			}
			return err
		}
		logrus.WithFields(logrus.Fields{
			"pc":    fmt.Sprintf("0x%08x", cpu.PC-8),
			"instr": cpu.Op.Disassemble(cpu.PC - 8),
		}).Debug("CPU step")
	}
}

func printStats(instructions uint64, icache, dcache *cache.Cache) {
	is := icache.Stats()
	ds := dcache.Stats()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Instructions executed: %d\n", instructions)
	fmt.Fprintf(os.Stderr, "I-cache: %d accesses, %d hits, %d misses (%.1f%% hit rate)\n",
		is.Reads, is.Hits, is.Misses, hitRate(is))
	fmt.Fprintf(os.Stderr, "D-cache: %d accesses, %d hits, %d misses (%.1f%% hit rate)\n",
		ds.Reads+ds.Writes, ds.Hits, ds.Misses, hitRate(ds))
	fmt.Fprintf(os.Stderr, "Estimated memory cycles: %d\n", is.Cycles+ds.Cycles)
}

func hitRate(s cache.Statistics) float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return 100 * float64(s.Hits) / float64(total)
}
