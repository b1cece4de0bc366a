package resources

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rflorenc/tower-cli/internal/apierr"
)

// SecretSource supplies the passwords a job needs before it can start.
type SecretSource interface {
	Secret(name string) (string, error)
}

// MapSecrets answers from a fixed set of values.
type MapSecrets map[string]string

func (m MapSecrets) Secret(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", apierr.Usage("the job needs %s to start; pass --secret %s=VALUE", name, name)
	}
	return v, nil
}

// ParseSecrets turns name=value pairs into MapSecrets.
func ParseSecrets(pairs []string) (MapSecrets, error) {
	m := MapSecrets{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, apierr.Usage("invalid secret %q, expected name=value", p)
		}
		m[name] = value
	}
	return m, nil
}

// TerminalPrompt asks for each secret on the controlling terminal without
// echoing it.
type TerminalPrompt struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompt prompts on stdin and writes prompts to stderr.
func NewTerminalPrompt() *TerminalPrompt {
	return &TerminalPrompt{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompt) Secret(name string) (string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return "", apierr.Usage("the job needs %s to start and no terminal is available; pass --secret %s=VALUE", name, name)
	}
	fmt.Fprintf(p.Out, "%s: ", name)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Chain asks each source in turn and returns the first answer.
type Chain []SecretSource

func (c Chain) Secret(name string) (string, error) {
	var lastErr error
	for _, src := range c {
		v, err := src.Secret(name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apierr.Usage("no source for secret %s", name)
	}
	return "", lastErr
}
