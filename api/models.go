package api

import "github.com/vdutts/vault/pin"

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StateResponse is returned from GET /state and embedded in every
// state-changing reply. It never carries the session token.
type StateResponse struct {
	State     string `json:"state"`
	Condition string `json:"condition,omitempty"`
	Entered   int    `json:"entered"`
	Unlocked  bool   `json:"unlocked"`
	Source    string `json:"source,omitempty"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetupPinRequest is the JSON body for POST /pin/setup.
type SetupPinRequest struct {
	Pin     string `json:"pin"`
	Confirm string `json:"confirm"`
}

// PinEntryRequest is the JSON body for POST /pin/entry. Value is the full
// current content of the PIN field.
type PinEntryRequest struct {
	Value string `json:"value"`
}

// PinEntryResponse is returned from POST /pin/entry.
type PinEntryResponse struct {
	Outcome string `json:"outcome"`
	StateResponse
}

// PinStatusResponse is returned from GET /pin/status.
type PinStatusResponse = pin.Status
