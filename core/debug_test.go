package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusTraceRing(t *testing.T) {
	ClearBusTrace()
	defer ClearBusTrace()

	for i := 0; i < TraceRingSize+5; i++ {
		RecordBusEvent(EvtSPITransfer, uint8(i), 0)
	}
	events := BusTrace()
	assert.Len(t, events, TraceRingSize)
	assert.Equal(t, uint8(5), events[0].Arg, "oldest events are overwritten")
	assert.Equal(t, uint8(TraceRingSize+4), events[len(events)-1].Arg)
}

func TestBusTraceDisabled(t *testing.T) {
	ClearBusTrace()
	SetTraceEnabled(false)
	defer SetTraceEnabled(true)

	RecordBusEvent(EvtI2CStart, 0, 0x08)
	assert.Empty(t, BusTrace())
}

func TestDumpBusTrace(t *testing.T) {
	ClearBusTrace()
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})

	RecordBusEvent(EvtI2CAddress, 0xa0, 0x18)
	DumpBusTrace()

	assert.Equal(t, []string{
		"[TRACE] === bus trace ===",
		"[TRACE] I2C_ADDR arg=0xa0 val=0x18 (24)",
		"[TRACE] === end ===",
	}, lines)
	ClearBusTrace()
}

func TestDebugPrintlnGated(t *testing.T) {
	var out strings.Builder
	SetDebugWriter(func(s string) { out.WriteString(s) })
	defer SetDebugWriter(func(string) {})

	DebugPrintln("hidden")
	SetDebugEnabled(true)
	DebugPrintln("shown")
	SetDebugEnabled(false)

	assert.Equal(t, "shown", out.String())
}

func TestResultCodes(t *testing.T) {
	for _, e := range codedErrors {
		assert.Equal(t, e.Code, ResultCode(e))
		assert.Equal(t, e, ErrorForCode(e.Code))
		assert.Equal(t, e.Code, ResultCode(fmt.Errorf("wrapped: %w", e)))
	}
	assert.Equal(t, uint8(ResultOK), ResultCode(nil))
	assert.NoError(t, ErrorForCode(ResultOK))
	assert.Equal(t, uint8(0xff), ResultCode(errors.New("plain")))
	assert.EqualError(t, ErrorForCode(0x42), "unknown result code 0x42")
}

func TestResultCodesUnique(t *testing.T) {
	seen := map[uint8]bool{}
	for _, e := range codedErrors {
		assert.False(t, seen[e.Code], "duplicate code 0x%02x", e.Code)
		seen[e.Code] = true
	}
}
