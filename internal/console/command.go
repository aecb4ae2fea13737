// Package console implements the line-oriented control surface: it reads
// start/stop/status/exit commands, forwards them to the session controller
// and drains render requests into a Renderer.
package console

import (
	"errors"
	"fmt"
	"strings"
)

// Command is one control-surface instruction.
type Command string

const (
	CmdStart  Command = "start"
	CmdStop   Command = "stop"
	CmdStatus Command = "status"
	CmdHelp   Command = "help"
	CmdExit   Command = "exit"
)

// ErrUnknownCommand is returned by ParseCommand for unrecognized input.
var ErrUnknownCommand = errors.New("unknown command")

var aliases = map[string]Command{
	"start":  CmdStart,
	"stop":   CmdStop,
	"status": CmdStatus,
	"help":   CmdHelp,
	"?":      CmdHelp,
	"exit":   CmdExit,
	"quit":   CmdExit,
	"q":      CmdExit,
}

// ParseCommand maps a line of input to a Command. Matching ignores case and
// surrounding whitespace. An empty line returns "" and no error.
func ParseCommand(line string) (Command, error) {
	word := strings.ToLower(strings.TrimSpace(line))
	if word == "" {
		return "", nil
	}
	cmd, ok := aliases[word]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownCommand, word)
	}
	return cmd, nil
}

const helpText = `commands:
  start   begin a detection session
  stop    end the running session
  status  show session state and score
  exit    stop and quit`
