package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const (
	exitFailure     = 1
	exitServerDown  = 69
	exitInterrupted = 130
)

func main() {
	err := newRootCommand().Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "showcall: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode lets show scripts tell a missing server from a failed
// command.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, errServerDown):
		return exitServerDown
	}
	return exitFailure
}
