package core

import (
	"errors"
	"strings"
	"testing"

	"avrbus/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.Get(id)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	if err := registry.Dispatch(999, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 commands, got %d", registry.Count())
	}
	for i := uint16(0); i < 3; i++ {
		if _, ok := registry.Get(i); !ok {
			t.Errorf("Command %d not found", i)
		}
	}
}

func TestCommandRegistryReregister(t *testing.T) {
	registry := NewCommandRegistry()

	first := registry.Register("ping", "", func(data *[]byte) error { return errors.New("old") })
	second := registry.Register("ping", "", func(data *[]byte) error { return nil })
	if first != second {
		t.Errorf("Re-registering changed the ID: %d != %d", first, second)
	}
	if err := registry.Dispatch(first, new([]byte)); err != nil {
		t.Errorf("Expected the replacement handler to run, got %v", err)
	}
}

func TestCommandRegistryResponse(t *testing.T) {
	registry := NewCommandRegistry()

	id := registry.RegisterResponse("status", "code=%c")
	if err := registry.Dispatch(id, new([]byte)); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Responses must not dispatch, got %v", err)
	}
	cmd, ok := registry.Lookup("status")
	if !ok || cmd.ID != id {
		t.Errorf("Lookup returned %v, %v", cmd, ok)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Error("Lookup found an unregistered name")
	}
}

func TestCommandRegistryDictionary(t *testing.T) {
	registry := NewCommandRegistry()

	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	registry.RegisterResponse("result", "code=%c")
	registry.Register("reset", "", func(data *[]byte) error { return nil })

	want := "identify offset=%u count=%c\nresult code=%c\nreset\n"
	if dict := registry.Dictionary(); dict != want {
		t.Errorf("Dictionary mismatch:\n%s\nwant:\n%s", dict, want)
	}
	if n := strings.Count(registry.Dictionary(), "\n"); n != registry.Count() {
		t.Errorf("Expected one line per command, got %d", n)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32
	handler := func(data *[]byte) error {
		val, err := protocol.DecodeUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	}

	id := registry.Register("test_args", "value=%u", handler)
	data := protocol.AppendUint(nil, 12345)

	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
	if len(data) != 0 {
		t.Errorf("Handler left %d bytes undecoded", len(data))
	}
}
