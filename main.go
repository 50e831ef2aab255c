package main

import (
	"fmt"
	"os"

	"github.com/north-cloud/prospect-research/internal/bootstrap"
)

func main() {
	if err := bootstrap.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
