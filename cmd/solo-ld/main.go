// Package main provides the entry point for the SoloMIPS static linker.
//
// The linker consumes a single relocatable ELF32/MIPS object file and
// writes a flat binary image for the emulator. Exit codes: 0 on
// success, 2 on usage errors, 3 on I/O or link errors.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/p2k/solomips/emu"
	"github.com/p2k/solomips/linker"
)

const version = "SoloMIPS ld 0.0.1"

var (
	output      = flag.String("o", "a.out", "Set output file name")
	entry       = flag.Uint("e", uint(emu.DefaultEntry), "Set start address")
	tdata       = flag.Uint("Tdata", uint(emu.DefaultDataAddr), "Set address of .data section")
	sdata       = flag.Uint("Sdata", uint(emu.DefaultDataSize), "Set size of .data section")
	disassemble = flag.Bool("d", false, "Print a disassembly of all input files (ignores -o)")
	showVersion = flag.Bool("v", false, "Print version information")
)

func init() {
	flag.StringVar(output, "output", "a.out", "Set output file name")
	flag.UintVar(entry, "entry", uint(emu.DefaultEntry), "Set start address")
	flag.BoolVar(disassemble, "disassemble", false, "Print a disassembly of all input files (ignores -o)")
	flag.BoolVar(showVersion, "version", false, "Print version information")
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] file...\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return 0
	}

	if flag.NArg() == 0 {
		usage()
		return 2
	}
	if *entry == 0 {
		fmt.Fprintln(os.Stderr, "error: start address cannot be 0")
		return 2
	}
	if *tdata == 0 {
		fmt.Fprintln(os.Stderr, "error: address of .data section cannot be 0")
		return 2
	}
	if *sdata == 0 {
		fmt.Fprintln(os.Stderr, "error: size of .data section cannot be 0")
		return 2
	}

	ld := linker.New(flag.Args(), uint32(*entry), uint32(*tdata), uint32(*sdata))

	if *disassemble {
		if err := ld.Disassemble(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 3
		}
		return 0
	}

	out, err := os.Create(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: could not open output file for writing")
		return 3
	}

	w := bufio.NewWriter(out)
	ret := 0
	if err := ld.Run(w); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		ret = 3
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, "error: could not write output file")
		ret = 3
	}
	if err := out.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "error: could not write output file")
		ret = 3
	}

	return ret
}
