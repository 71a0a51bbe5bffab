// Package unlock implements the quick-unlock state machine that routes a user
// between primary login, PIN setup, PIN entry and the unlocked vault.
//
// A Controller is driven by one user at a time (keystrokes, button presses,
// one start-up check) and is not safe for concurrent use.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vdutts/vault/identity"
	"github.com/vdutts/vault/pin"
)

// Controller routes the user through the unlock flow.
type Controller struct {
	store       *pin.Store
	provider    identity.Provider
	logger      *slog.Logger
	revalidate  bool
	maxAttempts int
	now         func() time.Time

	state     State
	entered   string
	condition string
	failures  int
	session   *Session
}

// New returns a Controller in AwaitingPrimaryLogin. Call Start before use.
func New(store *pin.Store, provider identity.Provider, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		provider:   provider,
		revalidate: true,
		now:        time.Now,
		state:      AwaitingPrimaryLogin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Condition returns the user-facing message left by the last operation, or "".
func (c *Controller) Condition() string { return c.condition }

// Entered returns how many PIN digits are currently buffered.
func (c *Controller) Entered() int { return len(c.entered) }

// Session returns the released primary session while Unlocked.
func (c *Controller) Session() (*Session, bool) {
	if c.state != Unlocked || c.session == nil {
		return nil, false
	}
	return c.session, true
}

func (c *Controller) transition(to State, event string) {
	from := c.state
	c.state = to
	c.logger.Debug("unlock: transition", "event", event, "from", from, "to", to)
}

func (c *Controller) invalid(op string) error {
	return fmt.Errorf("%s in %s: %w", op, c.state, ErrInvalidState)
}

func (c *Controller) setSession(token string, source Source) {
	c.closeSession()
	c.session = newSession(token, source)
}

func (c *Controller) closeSession() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

// Start decides the entry route: PIN entry when a PIN and a session backup
// are both stored, straight to Unlocked when the provider still holds a live
// session, otherwise primary login.
func (c *Controller) Start(ctx context.Context) State {
	c.entered = ""
	c.condition = ""
	c.failures = 0
	c.closeSession()

	if c.store.HasStoredSession() {
		c.transition(AwaitingPinEntry, "start")
		return c.state
	}
	if src, ok := c.provider.(identity.SessionSource); ok {
		if sess, ok := src.CurrentSession(ctx); ok {
			c.setSession(sess.AccessToken, SourceProvider)
			c.transition(Unlocked, "start")
			return c.state
		}
	}
	c.transition(AwaitingPrimaryLogin, "start")
	return c.state
}

// SignIn runs primary authentication. On success the session token is backed
// up and the PIN setup offer follows; provider errors leave the state as is.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	if c.state != AwaitingPrimaryLogin {
		return c.invalid("sign in")
	}
	sess, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		c.logger.Info("unlock: primary sign-in failed", "error", err)
		return err
	}
	c.condition = ""
	c.setSession(sess.AccessToken, SourcePassword)

	if err := c.store.StoreSessionBackup(sess.AccessToken); err != nil {
		// Without a backup a PIN could never be used; admit without offering one.
		c.logger.Warn("unlock: session backup failed, skipping pin offer", "error", err)
		c.condition = ConditionNoQuickUnlock
		c.transition(Unlocked, "sign in")
		return nil
	}
	c.transition(PinSetupOffer, "sign in")
	return nil
}

// SetupPin completes the setup offer. confirm must equal pin. Mismatch,
// validation and storage errors keep the offer open.
func (c *Controller) SetupPin(p, confirm string) error {
	if c.state != PinSetupOffer {
		return c.invalid("setup pin")
	}
	if p != confirm {
		c.condition = ConditionPinMismatch
		return ErrPinMismatch
	}
	if err := c.store.SetupPin(p); err != nil {
		if errors.Is(err, pin.ErrValidation) {
			c.condition = err.Error()
		} else {
			c.condition = ConditionSetupFailed
			c.logger.Warn("unlock: pin setup failed", "error", err)
		}
		return err
	}
	c.condition = ""
	c.transition(Unlocked, "setup pin")
	return nil
}

// SkipSetup declines the offer. The PIN stays disabled, so the next start
// routes to primary login.
func (c *Controller) SkipSetup() error {
	if c.state != PinSetupOffer {
		return c.invalid("skip setup")
	}
	c.condition = ""
	c.transition(Unlocked, "skip setup")
	return nil
}

// InputPin takes the full current content of the PIN field. The value is
// normalised; once four digits are present it is verified without a separate
// submit. The buffered digits are cleared after every verification.
func (c *Controller) InputPin(ctx context.Context, value string) (Outcome, error) {
	if c.state != AwaitingPinEntry {
		return OutcomePending, c.invalid("input pin")
	}
	c.entered = pin.Normalize(value)
	c.condition = ""
	if len(c.entered) < pin.Length {
		return OutcomePending, nil
	}

	candidate := c.entered
	c.entered = ""

	ok, err := c.store.VerifyPin(candidate)
	if err != nil {
		c.condition = ConditionVerifyFailed
		c.logger.Warn("unlock: pin verification failed", "error", err)
		return OutcomeFailed, err
	}
	if !ok {
		c.failures++
		if c.maxAttempts > 0 && c.failures >= c.maxAttempts {
			c.logger.Warn("unlock: attempt limit reached", "attempts", c.failures)
			err := c.clearGate(ConditionLockedOut, "attempt limit")
			return OutcomeLockedOut, err
		}
		c.condition = ConditionIncorrectPin
		c.logger.Info("unlock: incorrect pin", "attempts", c.failures)
		return OutcomeIncorrect, nil
	}
	c.failures = 0

	token, ok, err := c.store.GetSessionBackup()
	if err != nil {
		c.condition = ConditionVerifyFailed
		c.logger.Warn("unlock: reading session backup failed", "error", err)
		return OutcomeFailed, err
	}
	if !ok {
		c.condition = ConditionSessionExpired
		c.transition(AwaitingPrimaryLogin, "missing session backup")
		return OutcomeExpired, nil
	}

	if c.revalidate {
		if err := c.checkSession(ctx, token); err != nil {
			if !errors.Is(err, identity.ErrTokenInvalid) {
				c.condition = ConditionVerifyFailed
				return OutcomeFailed, err
			}
			c.logger.Info("unlock: cached session rejected", "error", err)
			err := c.clearGate(ConditionSessionExpired, "session expired")
			return OutcomeExpired, err
		}
	}

	if r, ok := c.provider.(identity.Resumer); ok {
		r.Resume(token)
	}
	c.setSession(token, SourcePin)
	c.transition(Unlocked, "pin accepted")
	return OutcomeUnlocked, nil
}

// checkSession returns an identity.ErrTokenInvalid error when the cached
// token is known dead. An unreachable provider does not block an unlock.
func (c *Controller) checkSession(ctx context.Context, token string) error {
	if err := identity.CheckExpiry(token, c.now()); err != nil {
		return err
	}
	v, ok := c.provider.(identity.TokenValidator)
	if !ok {
		return nil
	}
	err := v.ValidateToken(ctx, token)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrTokenInvalid):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.logger.Warn("unlock: could not revalidate cached session, trusting cache", "error", err)
		return nil
	}
}

// clearGate disables the PIN and falls back to primary login.
func (c *Controller) clearGate(condition, event string) error {
	err := c.store.DisablePin()
	c.entered = ""
	c.failures = 0
	c.condition = condition
	c.closeSession()
	c.transition(AwaitingPrimaryLogin, event)
	return err
}

// ForgotPin clears the PIN and the session backup and returns to primary
// login. The state changes even if clearing storage fails.
func (c *Controller) ForgotPin() error {
	if c.state != AwaitingPinEntry {
		return c.invalid("forgot pin")
	}
	return c.clearGate("", "forgot pin")
}

// SignOut clears the gate, signs out of the primary provider and returns to
// primary login. Errors from both collaborators are joined. When no session is
// released the backed-up one is signed out instead.
func (c *Controller) SignOut(ctx context.Context) error {
	if r, ok := c.provider.(identity.Resumer); ok {
		if tok := c.signOutToken(); tok != "" {
			r.Resume(tok)
		}
	}
	storeErr := c.clearGate("", "sign out")
	providerErr := c.provider.SignOut(ctx)
	if providerErr != nil {
		c.logger.Warn("unlock: primary sign-out failed", "error", providerErr)
	}
	return errors.Join(storeErr, providerErr)
}

func (c *Controller) signOutToken() string {
	if c.session != nil {
		if tok, err := c.session.Token(); err == nil {
			return tok
		}
	}
	if tok, ok, err := c.store.GetSessionBackup(); err == nil && ok {
		return tok
	}
	return ""
}
