package main

import (
	"os"
)

func main() {
	if err := NewDispatcherCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
