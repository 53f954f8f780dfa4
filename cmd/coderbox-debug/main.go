package main

import (
	"os"

	"github.com/ULTRA-OS-Project/CoderBox-sub000/cmd/coderbox-debug/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
