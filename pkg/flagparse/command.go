package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-stage/pkg/util"
)

// Command is the sub-command selected on the command line.
type Command int

const (
	None Command = iota
	Build
	Init
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Build:   "build",
	Init:    "init",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", int(c))
}

// ParseCommand maps a sub-command name to its Command.
func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'build', 'init' or 'version'", s)
}
