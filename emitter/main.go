package main

import (
	"os"

	"github.com/khushi89012/syook/emitter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
