package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var (
	errNotLoggedIn    = errors.New("not logged in")
	errNonInteractive = errors.New("input required in non-interactive mode")
)

// isInteractive reports whether stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassword prompts for a hidden value
func readPassword(label string) (string, error) {
	if !isInteractive() {
		return "", fmt.Errorf("%w: %s", errNonInteractive, strings.ToLower(label))
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(bytePassword), nil
}

// promptText asks for a visible value, offering def as the default
func promptText(label, def string) (string, error) {
	if !isInteractive() {
		if def != "" {
			return def, nil
		}
		return "", fmt.Errorf("%w: %s", errNonInteractive, strings.ToLower(label))
	}

	prompt := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("a value is required")
			}
			return nil
		},
	}

	value, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("input cancelled: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// promptOTP asks for the one-time code; an interrupted prompt returns promptui.ErrInterrupt
func promptOTP() (string, error) {
	if !isInteractive() {
		return "", fmt.Errorf("%w: verification code (use --otp)", errNonInteractive)
	}

	prompt := promptui.Prompt{
		Label: "Verification code (check your email)",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("enter the code from the email")
			}
			return nil
		},
	}
	return prompt.Run()
}

// valueOr returns v, or prompts for it when empty
func valueOr(v, label, def string) (string, error) {
	if v != "" {
		return v, nil
	}
	return promptText(label, def)
}

// secretOr returns v, or prompts for it hidden when empty
func secretOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return readPassword(label)
}
