// Package main provides the entry point for rvsim.
// rvsim is a cycle-stepped 5-stage pipelined RISC-V simulator.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvsim - 5-stage pipelined RISC-V simulator")
	fmt.Println("")
	fmt.Println("Usage: rvsim [options] (-text text.mc [-data data.mc] | -elf program)")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to timing configuration JSON file")
	fmt.Println("  -forward     Enable operand forwarding")
	fmt.Println("  -predict     Enable the dynamic branch predictor")
	fmt.Println("  -dcache      Enable the L1 data cache timing model")
	fmt.Println("  -until       Stop condition over x0..x31, pc, cycle")
	fmt.Println("  -max-cycles  Stop after this many cycles")
	fmt.Println("  -delay       Pause between cycles")
	fmt.Println("  -trace       Print every retired instruction")
	fmt.Println("  -emu         Run the functional emulator")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
