package main

import (
	"fmt"
	"os"

	"cuckoo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cuckoo:", err)
		os.Exit(1)
	}
}
