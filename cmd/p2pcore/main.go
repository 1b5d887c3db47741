// Command p2pcore is a runnable entrypoint exercising the Host and
// Client facades end-to-end over a real network, the CLI supplement
// SPEC_FULL.md calls for in place of the teacher's GUI-specific
// cmd/rabbit/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/wiresync/p2pcore/cmd/p2pcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
