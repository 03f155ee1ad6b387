package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/danieljhkim/mdbook-confluence/internal/syncerr"
)

// Prompter asks the user for a secret.
type Prompter interface {
	Password(prompt string) (string, error)
}

// TTYPrompter reads from the controlling terminal. mdBook owns stdin, so the
// terminal is opened directly.
type TTYPrompter struct {
	// Device defaults to /dev/tty.
	Device string
}

// Password prompts without echo.
func (p *TTYPrompter) Password(prompt string) (string, error) {
	device := p.Device
	if device == "" {
		device = "/dev/tty"
	}
	tty, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("no terminal available: %w", err)
	}
	defer func() {
		_ = tty.Close()
	}()

	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is not a terminal", device)
	}
	if _, err := fmt.Fprint(tty, prompt); err != nil {
		return "", err
	}
	secret, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(tty)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// ResolvePassword fills in the password when the file and environment left
// it empty.
func ResolvePassword(cfg *Config, p Prompter) error {
	if cfg.Password != "" {
		return nil
	}
	if p == nil {
		return syncerr.NewConfigurationError("password", "not set; export %s", EnvPassword)
	}

	secret, err := p.Password(fmt.Sprintf("Confluence password for %s at %s: ", cfg.Username, cfg.URL))
	if err != nil {
		return syncerr.NewConfigurationError("password", "not set and could not prompt (%v); export %s", err, EnvPassword)
	}
	secret = strings.TrimRight(secret, "\r\n")
	if secret == "" {
		return syncerr.NewConfigurationError("password", "empty password entered; export %s", EnvPassword)
	}
	cfg.Password = secret
	return nil
}
