package unlock

import "fmt"

// State is a position in the unlock flow.
type State int

const (
	// AwaitingPrimaryLogin shows the email/password form.
	AwaitingPrimaryLogin State = iota
	// PinSetupOffer follows every successful primary login.
	PinSetupOffer
	// AwaitingPinEntry shows the PIN pad for a returning user.
	AwaitingPinEntry
	// Unlocked admits the user to the vault.
	Unlocked
)

var stateNames = [...]string{
	AwaitingPrimaryLogin: "awaiting_primary_login",
	PinSetupOffer:        "pin_setup_offer",
	AwaitingPinEntry:     "awaiting_pin_entry",
	Unlocked:             "unlocked",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of feeding PIN input to the controller.
type Outcome int

const (
	// OutcomePending means fewer than four digits have been entered.
	OutcomePending Outcome = iota
	// OutcomeUnlocked means the PIN matched and the session was released.
	OutcomeUnlocked
	// OutcomeIncorrect means the PIN did not match; input was cleared.
	OutcomeIncorrect
	// OutcomeFailed means the credential store could not be read.
	OutcomeFailed
	// OutcomeExpired means the PIN matched but the cached session is no longer
	// valid; the gate was cleared and primary login is required.
	OutcomeExpired
	// OutcomeLockedOut means the attempt limit was reached; the gate was
	// cleared and primary login is required.
	OutcomeLockedOut
)

var outcomeNames = [...]string{
	OutcomePending:   "pending",
	OutcomeUnlocked:  "unlocked",
	OutcomeIncorrect: "incorrect",
	OutcomeFailed:    "failed",
	OutcomeExpired:   "expired",
	OutcomeLockedOut: "locked_out",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// User-facing conditions surfaced through Controller.Condition.
const (
	ConditionIncorrectPin   = "Incorrect PIN"
	ConditionVerifyFailed   = "Failed to verify PIN"
	ConditionSetupFailed    = "Failed to setup PIN"
	ConditionPinMismatch    = "PINs don't match"
	ConditionSessionExpired = "Session expired, sign in with your password"
	ConditionLockedOut      = "Too many incorrect PINs, sign in with your password"
	ConditionNoQuickUnlock  = "Quick unlock is unavailable on this device"
)
