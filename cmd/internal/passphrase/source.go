package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar string
	label  string

	// prompt reads a secret from the operator. It is nil when no terminal is
	// attached.
	prompt func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source for the keystore named by label
// that checks envVar before prompting on the terminal.
func NewSource(envVar, label string) *Source {
	s := &Source{envVar: strings.TrimSpace(envVar), label: strings.TrimSpace(label)}
	if s.label == "" {
		s.label = "keystore"
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		s.prompt = terminalPrompt(os.Stderr)
	}
	return s
}

// Get returns the cached passphrase or resolves it on first use. A set but
// blank environment variable is an error; whitespace-only typed passphrases
// are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		if s.prompt == nil {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s passphrase required and no terminal available", s.label)
			}
			return
		}
		value, err := s.prompt(s.label)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = errors.New(s.label + " passphrase cannot be empty")
			return
		}
		s.value = value
	})
	return s.value, s.err
}

func terminalPrompt(out io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		fmt.Fprintf(out, "Enter %s passphrase: ", label)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
