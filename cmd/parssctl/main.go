package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"parss/internal/domain"
)

const (
	exitUnauthenticated = 3
	exitForbidden       = 4
	exitCanceled        = 130
)

func main() {
	code := runMain(Execute, os.Stderr)
	if code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	if err := execute(); err != nil {
		return exitCodeForError(err, stderr)
	}
	return 0
}

func exitCodeForError(err error, stderr io.Writer) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.silent {
			fmt.Fprintln(stderr, resolveErrorForExitError(ee, err))
		}
		return ee.code
	}

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "canceled")
		return exitCanceled
	case domain.IsAuthenticationError(err):
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr, "run 'parssctl login' to sign in")
		return exitUnauthenticated
	case domain.IsAuthorizationError(err):
		fmt.Fprintln(stderr, err)
		return exitForbidden
	}

	fmt.Fprintln(stderr, err)
	return 1
}

func resolveErrorForExitError(ee *exitError, fallback error) error {
	if ee != nil && ee.err != nil {
		return ee.err
	}
	return fallback
}
