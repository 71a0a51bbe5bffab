package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vdutts/vault/unlock"
)

// GetState handles GET /state.
func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ctrl.SignIn(r.Context(), req.Email, req.Password); err != nil {
		if !errors.Is(err, unlock.ErrInvalidState) {
			a.audit.logFailure(AuditLoginFailure, r, err.Error())
		}
		mapError(w, err)
		return
	}
	a.audit.log(AuditLoginSuccess, r)
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// Logout handles POST /auth/logout. The gate is cleared even when the
// provider sign-out fails; such failures are logged, not returned.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ctrl.SignOut(r.Context()); err != nil {
		a.audit.logFailure(AuditLogout, r, err.Error())
	} else {
		a.audit.log(AuditLogout, r)
	}
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// SetupPin handles POST /pin/setup.
func (a *API) SetupPin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SetupPinRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ctrl.SetupPin(req.Pin, req.Confirm); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditPinSetup, r)
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// SkipSetup handles POST /pin/skip.
func (a *API) SkipSetup(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ctrl.SkipSetup(); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditPinSetupSkipped, r)
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// EnterPin handles POST /pin/entry. Every outcome other than an illegal state
// is reported with 200; the condition carries the message for the user.
func (a *API) EnterPin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PinEntryRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	outcome, err := a.ctrl.InputPin(r.Context(), req.Value)
	if errors.Is(err, unlock.ErrInvalidState) {
		mapError(w, err)
		return
	}
	if err != nil {
		a.audit.logger.Warn("pin entry error", "outcome", outcome.String(), "error", err)
	}

	switch outcome {
	case unlock.OutcomeUnlocked:
		a.audit.log(AuditPinUnlock, r)
	case unlock.OutcomeIncorrect:
		a.audit.logFailure(AuditPinIncorrect, r, unlock.ConditionIncorrectPin)
	case unlock.OutcomeLockedOut:
		a.audit.logFailure(AuditPinLockedOut, r, unlock.ConditionLockedOut)
	case unlock.OutcomeExpired:
		a.audit.logFailure(AuditSessionExpired, r, unlock.ConditionSessionExpired)
	case unlock.OutcomeFailed:
		a.audit.logFailure(AuditPinVerifyFailed, r, unlock.ConditionVerifyFailed)
	}

	writeJSON(w, http.StatusOK, PinEntryResponse{
		Outcome:       outcome.String(),
		StateResponse: a.stateLocked(),
	})
}

// ForgotPin handles POST /pin/forgot.
func (a *API) ForgotPin(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ctrl.ForgotPin(); err != nil {
		if errors.Is(err, unlock.ErrInvalidState) {
			mapError(w, err)
			return
		}
		a.audit.logFailure(AuditPinForgotten, r, err.Error())
	} else {
		a.audit.log(AuditPinForgotten, r)
	}
	writeJSON(w, http.StatusOK, a.stateLocked())
}

// PinStatus handles GET /pin/status.
func (a *API) PinStatus(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := a.store.Status()
	a.audit.logger.LogAttrs(r.Context(), slog.LevelDebug, "pin status",
		slog.Bool("enabled", status.Enabled),
		slog.Bool("has_session_backup", status.HasSessionBackup))
	writeJSON(w, http.StatusOK, PinStatusResponse(status))
}
