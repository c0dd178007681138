// Package prompt asks the operator for the one-time login code.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"

	"github.com/entrhq/notepost/pkg/auth"
)

// ErrCanceled is returned when the operator abandons the prompt.
var ErrCanceled = errors.New("code entry canceled")

const (
	minCodeLength = 4
	maxCodeLength = 8
)

// New returns a TUI prompt when in is a terminal and a line prompt otherwise.
func New(in *os.File, out io.Writer) auth.CodeSource {
	if term.IsTerminal(int(in.Fd())) {
		return NewTUIPrompt(in, out)
	}
	return NewLinePrompt(in, out)
}

// validateCode accepts 4 to 8 ASCII digits.
func validateCode(code string) error {
	if code == "" {
		return errors.New("code is empty")
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return errors.New("code must contain digits only")
		}
	}
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return fmt.Errorf("code must be %d-%d digits", minCodeLength, maxCodeLength)
	}
	return nil
}

// LinePrompt reads the code as one line of text.
type LinePrompt struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewLinePrompt creates a prompt reading from in and writing the question to out.
func NewLinePrompt(in io.Reader, out io.Writer) *LinePrompt {
	return &LinePrompt{reader: bufio.NewReader(in), out: out}
}

type lineResult struct {
	line string
	err  error
}

// RequestCode prints the question and waits for a line. The wait has no
// timeout of its own; cancel ctx to abandon it.
func (p *LinePrompt) RequestCode(ctx context.Context, challenge auth.Challenge) (string, error) {
	fmt.Fprintf(p.out, "Enter the verification code sent to %s: ", challenge.Identifier)

	done := make(chan lineResult, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		done <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		code := strings.TrimSpace(res.line)
		if res.err != nil && (!errors.Is(res.err, io.EOF) || code == "") {
			return "", fmt.Errorf("failed to read code: %w", res.err)
		}
		return code, nil
	}
}
