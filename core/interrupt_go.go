//go:build !tinygo

package core

// State stands in for the saved interrupt state on hosted Go.
type State uintptr

// disableInterrupts is a no-op off-target; hosted builds have no interrupt
// handlers touching the registers.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
