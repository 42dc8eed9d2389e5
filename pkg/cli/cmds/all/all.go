// Package all registers all shell commands.
package all

import (
	_ "github.com/mattbot/mcucomms/pkg/cli/cmds/drive"
)
