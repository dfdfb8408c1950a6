package main

import (
	"os"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
)

func main() {
	util.LoadEnv()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
