package main

import (
	"fmt"
	"os"

	"github.com/Naved20/new-dastawez/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dastawez: %v\n", err)
		os.Exit(1)
	}
}
