// Package main is the entry point for the usbrevue capture rewriting tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/usbrevue/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
