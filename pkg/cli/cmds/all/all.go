// Package all registers every device command set of the shell.
package all

import (
	// device commands
	_ "github.com/robotalks/rdd.go/pkg/cli/cmds/hello"
	_ "github.com/robotalks/rdd.go/pkg/cli/cmds/servo"
)
