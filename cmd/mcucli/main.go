package main

import (
	"github.com/mattbot/mcucomms/pkg/cli/sh"

	_ "github.com/mattbot/mcucomms/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
