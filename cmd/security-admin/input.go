package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// promptPassword prints prompt to w and reads a password. On a terminal the
// input is not echoed; otherwise one line is read from in.
func promptPassword(in io.Reader, fd int, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}

	if isTerminal(fd) {
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptNewPassword asks twice and requires both answers to match.
func promptNewPassword(in io.Reader, fd int, w io.Writer) (string, error) {
	reader := bufio.NewReader(in)

	first, err := promptPassword(reader, fd, w, "New password")
	if err != nil {
		return "", err
	}
	second, err := promptPassword(reader, fd, w, "Repeat password")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
