package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crossclues/internal/prefs"
)

type action int

const (
	actNone action = iota
	actGuess
	actDiscard
	actNext
	actSize
	actToggle
	actHelp
	actQuit
)

type command struct {
	act    action
	label  string
	size   int
	toggle string
}

var errUsage = errors.New("unknown command, type ? for help")

var toggles = map[string]string{
	"dark":       prefs.ToggleDarkMode,
	"colorblind": prefs.ToggleColorBlind,
	"fullscreen": prefs.ToggleFullscreen,
}

const helpText = `B3 or g B3   guess the card at B3
d B3         discard the card at B3
n [size]     start the next round, optionally on a 3, 4 or 5 board
size N       remember N as the board size for new rounds
t NAME       toggle dark, colorblind or fullscreen
q            quit`

// parseCommand reads one input line. Labels are resolved against the board
// later, when the size is known.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{act: actNone}, nil
	}
	verb, args := fields[0], fields[1:]
	switch verb {
	case "g", "guess":
		if len(args) != 1 {
			return command{}, fmt.Errorf("%s needs a card label", verb)
		}
		return command{act: actGuess, label: args[0]}, nil
	case "d", "discard":
		if len(args) != 1 {
			return command{}, fmt.Errorf("%s needs a card label", verb)
		}
		return command{act: actDiscard, label: args[0]}, nil
	case "n", "new", "next":
		cmd := command{act: actNext}
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return command{}, fmt.Errorf("bad board size %q", args[0])
			}
			cmd.size = n
		}
		return cmd, nil
	case "size":
		if len(args) != 1 {
			return command{}, errors.New("size needs a number")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return command{}, fmt.Errorf("bad board size %q", args[0])
		}
		return command{act: actSize, size: n}, nil
	case "t", "toggle":
		if len(args) != 1 {
			return command{}, errors.New("toggle needs a name")
		}
		name, ok := toggles[args[0]]
		if !ok {
			return command{}, fmt.Errorf("%w %q", prefs.ErrUnknownToggle, args[0])
		}
		return command{act: actToggle, toggle: name}, nil
	case "?", "h", "help":
		return command{act: actHelp}, nil
	case "q", "quit", "exit":
		return command{act: actQuit}, nil
	}
	if len(fields) == 1 && len(verb) >= 2 && verb[0] >= 'a' && verb[0] <= 'z' && verb[1] >= '0' && verb[1] <= '9' {
		return command{act: actGuess, label: verb}, nil
	}
	return command{}, errUsage
}

// isYes reads a confirmation answer.
func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
