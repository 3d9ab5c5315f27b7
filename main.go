package main

import (
	"os"

	"github.com/elisoncampos/reactive-views-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
