package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ReadSecret prompts on stdout and reads one line from stdin without echo.
// When stdin is not a terminal the line is read as-is.
func ReadSecret(prompt string) (string, error) {
	return readSecret(os.Stdin, prompt)
}

func readSecret(in *os.File, prompt string) (string, error) {
	fmt.Fprintf(out, "%s%s%s ", Bold, prompt, Reset)

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return readLine(in)
	}

	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Confirm asks a yes/no question. Anything but y/yes is a no.
func Confirm(question string) bool {
	fmt.Fprintf(out, "%s %s[y/N]%s ", question, Dim, Reset)
	answer, err := readLine(os.Stdin)
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// readLine reads up to the first newline.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
