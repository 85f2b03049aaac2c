// Command wireflow runs and checks flow exports.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wireflow:", err)
		os.Exit(1)
	}
}
