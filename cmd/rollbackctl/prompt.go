package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNoSecret = errors.New("no secret provided")

// readSecret returns value when set, otherwise the first line of stdin
// when fromStdin is set, otherwise a no-echo terminal prompt.
func readSecret(value string, fromStdin bool, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}

	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errNoSecret
		}
		return line, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: use a flag or --stdin", errNoSecret)
	}

	fmt.Fprint(os.Stderr, prompt)

	// Read without echo
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // New line after secret

	if err != nil {
		return "", err
	}
	if len(secret) == 0 {
		return "", errNoSecret
	}

	return string(secret), nil
}
