package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vdutts/vault/identity"
	"github.com/vdutts/vault/pin"
	"github.com/vdutts/vault/unlock"
)

// setupMode decides what happens at the PIN setup offer.
type setupMode int

const (
	setupAsk setupMode = iota
	setupAlways
	setupNever
)

const maxPromptAttempts = 3

var (
	errLoginRequired   = errors.New("primary login required; run `vault login`")
	errTooManyAttempts = errors.New("too many attempts")
)

type flowOptions struct {
	allowLogin bool
	setup      setupMode
}

// runFlow drives ctrl from its current state until the vault is unlocked.
func runFlow(ctx context.Context, ctrl *unlock.Controller, p *prompter, out io.Writer, opts flowOptions) error {
	logins := 0
	for {
		switch ctrl.State() {
		case unlock.Unlocked:
			reportUnlocked(ctrl, out)
			return nil

		case unlock.AwaitingPrimaryLogin:
			if !opts.allowLogin {
				return errLoginRequired
			}
			if logins == maxPromptAttempts {
				return fmt.Errorf("sign in: %w", errTooManyAttempts)
			}
			logins++
			if err := signIn(ctx, ctrl, p, out); err != nil {
				return err
			}

		case unlock.PinSetupOffer:
			if err := offerSetup(ctrl, p, out, opts.setup); err != nil {
				return err
			}

		case unlock.AwaitingPinEntry:
			if err := enterPin(ctx, ctrl, p, out); err != nil {
				return err
			}
		}
	}
}

func printCondition(ctrl *unlock.Controller, out io.Writer) {
	if c := ctrl.Condition(); c != "" {
		fmt.Fprintln(out, c)
	}
}

func reportUnlocked(ctrl *unlock.Controller, out io.Writer) {
	printCondition(ctrl, out)
	source := "session"
	if sess, ok := ctrl.Session(); ok {
		source = string(sess.Source)
	}
	fmt.Fprintf(out, "Vault unlocked (%s)\n", source)
}

// signIn prompts for primary credentials once. Rejected credentials are
// reported and leave the controller awaiting another attempt.
func signIn(ctx context.Context, ctrl *unlock.Controller, p *prompter, out io.Writer) error {
	printCondition(ctrl, out)
	email, err := p.Line("Email: ")
	if err != nil {
		return err
	}
	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}
	err = ctrl.SignIn(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		fmt.Fprintln(out, "Invalid email or password")
		return nil
	}
	return err
}

func offerSetup(ctrl *unlock.Controller, p *prompter, out io.Writer, mode setupMode) error {
	switch mode {
	case setupNever:
		return ctrl.SkipSetup()
	case setupAsk:
		ok, err := p.Confirm("Set up a 4-digit PIN for quick unlock? [y/N]: ")
		if err != nil {
			return err
		}
		if !ok {
			return ctrl.SkipSetup()
		}
	}

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		code, err := p.Secret("New PIN: ")
		if err != nil {
			return err
		}
		confirm, err := p.Secret("Confirm PIN: ")
		if err != nil {
			return err
		}
		err = ctrl.SetupPin(code, confirm)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unlock.ErrPinMismatch), errors.Is(err, pin.ErrValidation):
			printCondition(ctrl, out)
		default:
			printCondition(ctrl, out)
			return err
		}
	}
	fmt.Fprintln(out, "PIN not set; continuing without quick unlock")
	return ctrl.SkipSetup()
}

// enterPin reads one PIN attempt. Typing "forgot" clears the PIN.
func enterPin(ctx context.Context, ctrl *unlock.Controller, p *prompter, out io.Writer) error {
	value, err := p.Secret("PIN (or \"forgot\"): ")
	if err != nil {
		return err
	}
	if value == "forgot" {
		if err := ctrl.ForgotPin(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Quick unlock cleared; sign in with your password")
		return nil
	}

	outcome, err := ctrl.InputPin(ctx, value)
	switch outcome {
	case unlock.OutcomePending:
		if err == nil {
			fmt.Fprintf(out, "PIN must be exactly %d digits\n", pin.Length)
		}
	case unlock.OutcomeIncorrect, unlock.OutcomeExpired, unlock.OutcomeLockedOut:
		printCondition(ctrl, out)
		if err != nil {
			logger.Warn("clearing quick unlock failed", "error", err)
		}
		return nil
	case unlock.OutcomeFailed:
		printCondition(ctrl, out)
	}
	return err
}
