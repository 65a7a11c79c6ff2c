package main

import (
	"os"

	"github.com/bdobrica/Kiki/common/logging"
)

func main() {
	logging.Preinit()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
