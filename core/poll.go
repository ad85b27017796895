package core

// Waiter blocks until cond reports true. The default is a bare busy-wait; a
// bounded or cooperative variant can be injected without touching call sites.
type Waiter interface {
	Wait(cond func() bool)
}

// BusyWait spins on cond with no timeout. An unresponsive peripheral blocks
// the caller forever.
type BusyWait struct{}

func (BusyWait) Wait(cond func() bool) {
	for !cond() {
	}
}

// WaiterFunc adapts a function to the Waiter interface.
type WaiterFunc func(cond func() bool)

func (f WaiterFunc) Wait(cond func() bool) { f(cond) }

// pollUntilSet blocks until all bits of mask read back set in r.
func pollUntilSet(regs Registers, w Waiter, r Reg, mask uint8) {
	w.Wait(func() bool {
		return regs.Read(r)&mask == mask
	})
}
