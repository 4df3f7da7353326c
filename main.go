package main

import (
	"fmt"
	"os"

	"github.com/redhouse-home/heatctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "heatctl:", err)
		os.Exit(1)
	}
}
