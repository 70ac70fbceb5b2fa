// Command wordnest operates the local sync engine and word bank from the
// terminal: running sync rounds, introducing words, recording rounds and
// inspecting state.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
