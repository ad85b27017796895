package core

import "strconv"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// BusEvent is one bus-level action captured for post-mortem inspection.
type BusEvent struct {
	Kind  EventKind
	Arg   uint8 // register value written, address byte or data byte
	Value uint8 // resulting status or received byte
}

// EventKind classifies a BusEvent.
type EventKind uint8

const (
	EvtNone EventKind = iota
	EvtSPIConfigure
	EvtSPITransfer
	EvtSPISelect
	EvtSPIDeselect
	EvtI2CConfigure
	EvtI2CStart
	EvtI2CAddress
	EvtI2CWrite
	EvtI2CRead
	EvtI2CStop
)

var eventNames = [...]string{
	EvtNone:         "NONE",
	EvtSPIConfigure: "SPI_CONFIG",
	EvtSPITransfer:  "SPI_XFER",
	EvtSPISelect:    "SPI_SELECT",
	EvtSPIDeselect:  "SPI_DESELECT",
	EvtI2CConfigure: "I2C_CONFIG",
	EvtI2CStart:     "I2C_START",
	EvtI2CAddress:   "I2C_ADDR",
	EvtI2CWrite:     "I2C_WRITE",
	EvtI2CRead:      "I2C_READ",
	EvtI2CStop:      "I2C_STOP",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "UNKNOWN"
}

const TraceRingSize = 32

var (
	// debugPrintln is set by platform code; no-op by default.
	debugPrintln DebugWriter = func(s string) {}

	debugEnabled bool

	traceRing    [TraceRingSize]BusEvent
	traceHead    uint8
	traceEnabled = true
)

// SetDebugWriter redirects debug output to UART, USB, a logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables DebugPrintln output.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetTraceEnabled turns bus event capture on or off.
func SetTraceEnabled(enabled bool) {
	traceEnabled = enabled
}

// DebugPrintln writes msg if debug output is enabled.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordBusEvent appends an event to the trace ring, overwriting the oldest.
func RecordBusEvent(kind EventKind, arg, value uint8) {
	if !traceEnabled {
		return
	}
	traceRing[traceHead] = BusEvent{Kind: kind, Arg: arg, Value: value}
	traceHead = (traceHead + 1) % TraceRingSize
}

// BusTrace returns the captured events, oldest first.
func BusTrace() []BusEvent {
	events := make([]BusEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(traceHead+i)%TraceRingSize]
		if evt.Kind == EvtNone {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// DumpBusTrace writes the trace ring through the debug writer regardless of
// whether debug output is enabled. Call it after a bus hang or on shutdown.
func DumpBusTrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === bus trace ===")
	for _, evt := range BusTrace() {
		debugPrintln("[TRACE] " + evt.Kind.String() +
			" arg=0x" + hexByte(evt.Arg) +
			" val=0x" + hexByte(evt.Value) +
			" (" + strconv.Itoa(int(evt.Value)) + ")")
	}
	debugPrintln("[TRACE] === end ===")
}

// ClearBusTrace empties the trace ring.
func ClearBusTrace() {
	for i := range traceRing {
		traceRing[i] = BusEvent{}
	}
	traceHead = 0
}
