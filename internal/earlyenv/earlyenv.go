// Package earlyenv sets process environment that must be in place before any
// host startup code runs. Import it for side effects as early as possible.
package earlyenv

import (
	"fmt"
	"os"
)

const (
	Name  = "NO_ALBUMENTATIONS_UPDATE"
	Value = "1"
)

var setErr error

func init() {
	setErr = os.Setenv(Name, Value)
	if setErr != nil {
		fmt.Fprintf(os.Stderr, "[000_ComfyUI-Optim] ERROR: Failed to set environment variable %s: %v\n", Name, setErr)
	}
}

// Err returns the error from the init-time Setenv, if any.
func Err() error {
	return setErr
}

// Active reports whether the variable still holds the expected value.
func Active() bool {
	return os.Getenv(Name) == Value
}
