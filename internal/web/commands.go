package web

import (
	"errors"

	"github.com/sweeney/tide-display/internal/status"
)

// ErrTestModeOnly is returned for a manual level outside test mode.
var ErrTestModeOnly = errors.New("manual level requires test mode")

// CommandKind says what an operator command asks for.
type CommandKind int

const (
	CommandMode CommandKind = iota
	CommandLevel
)

// Command is an operator request delivered to the control loop. The loop
// applies it and sends exactly one result on Reply.
type Command struct {
	Kind  CommandKind
	Mode  status.Mode
	Level float64
	Reply chan error
}

func newCommand(kind CommandKind) Command {
	return Command{Kind: kind, Reply: make(chan error, 1)}
}
