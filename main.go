package main

import (
	"context"
	"fmt"
	"os"

	"citation-processor/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "citation-processor: %v\n", err)
		os.Exit(1)
	}
}
