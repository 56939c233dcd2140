//go:build windows

package core

import "os"

var quietSignals []os.Signal
