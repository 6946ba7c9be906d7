// Package shell is the interactive command line used to inspect and reconfigure a
// running switch.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"blair"

	"github.com/chzyer/readline"
	log "github.com/sirupsen/logrus"
)

const promptBase = "blair-switch"

var (
	// ErrExit is returned by Exec when the operator asked to leave the shell.
	ErrExit           = errors.New("exit")
	ErrUnknownCommand = errors.New("unknown command")
)

// Shell executes operator commands against a switch. It is either in general mode
// or in the configuration mode of one interface.
type Shell struct {
	sw  *blair.Switch
	out io.Writer

	general []*command
	perIntf []*command

	intf *blair.Port
}

func New(sw *blair.Switch, out io.Writer) *Shell {
	return &Shell{
		sw:      sw,
		out:     out,
		general: generalCommands,
		perIntf: interfaceCommands,
	}
}

// Prompt is "blair-switch#" in general mode and "blair-switch(<intf>)#" otherwise.
func (s *Shell) Prompt() string {
	if s.intf != nil {
		return fmt.Sprintf("%s(%s)# ", promptBase, s.intf.Name())
	}

	return promptBase + "# "
}

// Interface returns the interface being configured, or nil in general mode.
func (s *Shell) Interface() *blair.Port {
	return s.intf
}

func (s *Shell) commands() []*command {
	if s.intf != nil {
		return s.perIntf
	}

	return s.general
}

func (s *Shell) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Shell) help(prefix string) {
	for _, cmd := range s.commands() {
		if strings.HasPrefix(cmd.String(), prefix) {
			s.printf("%-40s %s\n", cmd, cmd.description)
		}
	}

	s.printf("\n")
}

// Exec runs one command line. Blank lines are ignored.
func (s *Shell) Exec(line string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}

	for _, cmd := range s.commands() {
		if cmd.matches(tokens) {
			log.WithField("command", line).Debug("running shell command")
			return cmd.run(s, cmd.args(tokens))
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownCommand, strings.Join(tokens, " "))
}

// requireMode fails unless the current interface's published mode has the same type
// as want. It returns the mode it checked so callers act on that one snapshot.
func (s *Shell) requireMode(want blair.PortMode) (blair.PortMode, error) {
	have := s.intf.State().Mode

	var err error

	switch want.(type) {
	case blair.AccessMode:
		if _, ok := have.(blair.AccessMode); !ok {
			err = blair.ErrNotAccess
		}
	case blair.TrunkMode:
		if _, ok := have.(blair.TrunkMode); !ok {
			err = blair.ErrNotTrunk
		}
	}

	if err != nil {
		return have, fmt.Errorf("%w: %s is in %s", err, s.intf.Name(), have)
	}

	return have, nil
}

// Complete returns the words that may follow line, the last word of which may be
// partially typed.
func (s *Shell) Complete(line string) []string {
	tokens := strings.Split(line, " ")
	last := len(tokens) - 1
	seen := make(map[string]bool)

	var out []string

	add := func(word string) {
		if strings.HasPrefix(word, tokens[last]) && !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}

	for _, cmd := range s.commands() {
		if last >= len(cmd.pattern) || !cmd.prefixMatches(tokens[:last]) {
			continue
		}

		word := cmd.pattern[last]

		switch {
		case word == "<intf>" || word == "<target_intf>":
			for _, p := range s.sw.Ports() {
				add(p.Name())
			}
		case isPlaceholder(word):
		default:
			add(word)
		}
	}

	sort.Strings(out)

	return out
}

func (c *command) prefixMatches(tokens []string) bool {
	for i, token := range tokens {
		if !isPlaceholder(c.pattern[i]) && token != c.pattern[i] {
			return false
		}
	}

	return true
}

type completer struct {
	s *Shell
}

// Do implements readline.AutoCompleter: it returns the suffixes completing the word
// under the cursor and the length of what was already typed of it.
func (c completer) Do(line []rune, pos int) ([][]rune, int) {
	typed := string(line[:pos])
	words := c.s.Complete(typed)

	current := typed[strings.LastIndex(typed, " ")+1:]

	out := make([][]rune, 0, len(words))
	for _, word := range words {
		out = append(out, []rune(word[len(current):]+" "))
	}

	return out, len([]rune(current))
}

// Run reads commands from the terminal until exit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.Prompt(),
		HistoryFile:     historyFile,
		AutoComplete:    completer{s: s},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}

	defer rl.Close()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		rl.SetPrompt(s.Prompt())

		line, err := rl.Readline()

		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			if s.intf != nil && ctx.Err() == nil {
				s.intf = nil
				continue
			}

			return nil
		case err != nil:
			return err
		}

		err = s.Exec(line)
		if errors.Is(err, ErrExit) {
			return nil
		}

		if err != nil {
			s.printf("Error: %s\n", err)
		}
	}
}
