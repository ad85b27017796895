package core

// critical runs fn with interrupts disabled, so an interrupt-driven handler
// never observes a half-written register set.
func critical(fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	fn()
}
