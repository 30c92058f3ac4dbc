// Package main provides a short pointer to the full CLI.
// MR32Sim is a functional, instruction-accurate simulator for the MR32
// instruction set.
//
// For the full CLI, use: go run ./cmd/mr32sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("mr32sim - MR32 instruction set simulator")
	fmt.Println("")
	fmt.Println("Usage: mr32sim [options] <program> [program-arguments...]")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/mr32sim --help' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: you provided arguments. Use 'go run ./cmd/mr32sim' instead.")
	}
}
