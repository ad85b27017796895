package core

import (
	"errors"
	"strings"
	"sync"
)

// CommandHandler decodes its own arguments from data and advances it.
type CommandHandler func(data *[]byte) error

// Command is one entry of the bridge command table. Responses (MCU to host)
// have a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "addr=%c rw=%c"
	Handler CommandHandler
}

// CommandRegistry assigns IDs in registration order and dispatches frames.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	byName   map[string]uint16
}

// ErrUnknownCommand is returned when dispatching an unregistered ID.
var ErrUnknownCommand = errors.New("unknown command")

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byName: make(map[string]uint16),
	}
}

// Register adds a command and returns its ID. Registering an existing name
// returns the existing ID and replaces its handler.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		r.commands[id].Handler = handler
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.byName[name] = id
	return id
}

// RegisterResponse adds an MCU-to-host message.
func (r *CommandRegistry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// Lookup returns the command registered under name.
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Get returns the command with the given ID.
func (r *CommandRegistry) Get(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands and responses.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler for id.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.Get(id)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Dictionary renders the table as "name format" lines in ID order. Both
// ends of the link compare it to agree on IDs.
func (r *CommandRegistry) Dictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, cmd := range r.commands {
		sb.WriteString(cmd.Name)
		if cmd.Format != "" {
			sb.WriteByte(' ')
			sb.WriteString(cmd.Format)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
