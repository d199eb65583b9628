package main

import (
	"os"
)

func main() {
	if err := newRootCmd(defaultFactories(), os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
