package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	ustrings "github.com/rescale/photoup/internal/util/strings"
)

// RetryAction represents user choice after a round with failed uploads
type RetryAction int

const (
	RetryOnce RetryAction = iota
	RetryAll
	RetryStop
)

// prompter reads answers from one buffered input so that consecutive
// prompts do not lose typed-ahead lines.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) readLine() (string, error) {
	input, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// promptRetry asks whether failed uploads should be retried
func (p *prompter) promptRetry(failed, round, rounds int, advisory string) (RetryAction, error) {
	fmt.Fprintln(p.out)
	if advisory != "" {
		fmt.Fprintf(p.out, "%s\n", advisory)
	}
	fmt.Fprintf(p.out, "Retry %s? (round %d of %d)\n", ustrings.Count(failed, "failed upload"), round, rounds)
	fmt.Fprintln(p.out, "  1. Retry - Retry failed uploads, ask again after this round")
	fmt.Fprintln(p.out, "  2. Retry all - Retry for every remaining round without asking")
	fmt.Fprintln(p.out, "  3. Stop - Leave the failed uploads as they are")
	fmt.Fprint(p.out, "Choose [1-3]: ")

	for {
		input, err := p.readLine()
		if err != nil {
			return RetryStop, err
		}
		switch input {
		case "1":
			return RetryOnce, nil
		case "2":
			return RetryAll, nil
		case "3":
			return RetryStop, nil
		default:
			fmt.Fprint(p.out, "Invalid choice, please try again.\nChoose [1-3]: ")
		}
	}
}

// promptString asks for a value, returning def when the answer is empty
func (p *prompter) promptString(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return def, nil
	}
	return input, nil
}

// promptInt asks for a number in [min, max], re-asking on bad input
func (p *prompter) promptInt(label string, def, min, max int) (int, error) {
	for {
		input, err := p.promptString(label, strconv.Itoa(def))
		if err != nil {
			return def, err
		}
		v, err := strconv.Atoi(input)
		if err == nil && v >= min && v <= max {
			return v, nil
		}
		fmt.Fprintf(p.out, "  Error: enter a number between %d and %d\n", min, max)
	}
}

// promptYesNo asks a y/N question; anything but y or yes is no
func (p *prompter) promptYesNo(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	input, err := p.readLine()
	if err != nil {
		return false, err
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes", nil
}

// promptSecret reads a value without echo when stdin is a terminal.
func promptSecret(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return newPrompter(os.Stdin, out).readLine()
}
