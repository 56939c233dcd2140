//go:build !windows

package core

import (
	"os"
	"syscall"
)

// quietSignals stop fetching without shutting down
var quietSignals = []os.Signal{syscall.SIGTSTP}
