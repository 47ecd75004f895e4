// Package all registers all shell commands.
package all

import (
	// commands
	_ "github.com/robotalks/clock.go/pkg/cli/cmds/clock"
)
