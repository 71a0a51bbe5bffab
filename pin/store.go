// Package pin implements the device-local quick-unlock credential store: a
// one-way digest of a 4-digit PIN, an enabled flag and a backup of the most
// recent primary session token.
//
// The session backup is a cache of the token the user had when they last
// typed their password. Its presence only gates routing; it is never treated
// as proof of a live session.
package pin

import (
	"errors"
	"log/slog"

	"github.com/vdutts/vault/storage"
)

// DefaultNamespace is the storage namespace used when none is configured.
const DefaultNamespace = "device"

const (
	keyPinHash       = "pin-hash"
	keyPinEnabled    = "pin-enabled"
	keySessionBackup = "session-backup"

	enabledValue = "true"
)

// Store persists the PIN credential and session backup in a storage.Repository.
// A Store is driven by one user flow at a time and is not safe for concurrent use.
type Store struct {
	repo      storage.Repository
	namespace string
	kdf       KDFParams
	legacy    bool
	logger    *slog.Logger
}

// Status summarises what the store holds. It never carries secret material.
type Status struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	HasSessionBackup bool   `json:"has_session_backup" yaml:"has_session_backup"`
	Scheme           Scheme `json:"scheme,omitempty" yaml:"scheme,omitempty"`
}

// NewStore returns a Store backed by repo.
func NewStore(repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		namespace: DefaultNamespace,
		kdf:       DefaultKDFParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Namespace returns the storage namespace the store reads and writes.
func (s *Store) Namespace() string {
	return s.namespace
}

// SetupPin validates pin, then stores its digest and enables the gate in a
// single batch, replacing any previous PIN. Invalid input returns a
// *ValidationError and writes nothing.
func (s *Store) SetupPin(pin string) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}

	rec, err := s.newRecord(pin)
	if err != nil {
		return &IOError{Op: "setup", Err: err}
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return &IOError{Op: "setup", Err: err}
	}

	err = s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Put(keyPinHash, data); err != nil {
			return err
		}
		return tx.Put(keyPinEnabled, []byte(enabledValue))
	})
	if err != nil {
		return &IOError{Op: "setup", Err: err}
	}
	s.logger.Info("quick unlock pin configured", "namespace", s.namespace, "scheme", rec.Scheme)
	return nil
}

func (s *Store) newRecord(pin string) (*hashRecord, error) {
	if s.legacy {
		return newSHA256Record(pin), nil
	}
	return newArgon2idRecord(pin, s.kdf)
}

// VerifyPin reports whether pin matches the stored digest. A missing
// credential, a wrong PIN and empty input all return false with a nil error;
// only storage failures return an error.
func (s *Store) VerifyPin(pin string) (bool, error) {
	if pin == "" {
		return false, nil
	}
	data, err := s.repo.Get(s.namespace, keyPinHash)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &IOError{Op: "verify", Err: err}
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return false, &IOError{Op: "verify", Err: err}
	}
	ok, err := rec.matches(pin)
	if err != nil {
		return false, &IOError{Op: "verify", Err: err}
	}
	if ok && rec.Scheme == SchemeSHA256 && !s.legacy {
		s.upgrade(pin)
	}
	return ok, nil
}

// upgrade rewrites a verified legacy digest as Argon2id. Failure leaves the
// legacy digest in place.
func (s *Store) upgrade(pin string) {
	rec, err := newArgon2idRecord(pin, s.kdf)
	if err == nil {
		var data []byte
		if data, err = encodeRecord(rec); err == nil {
			err = s.repo.Put(s.namespace, keyPinHash, data)
		}
	}
	if err != nil {
		s.logger.Warn("quick unlock: legacy pin digest upgrade failed", "namespace", s.namespace, "error", err)
		return
	}
	s.logger.Info("quick unlock: legacy pin digest upgraded", "namespace", s.namespace, "scheme", SchemeArgon2id)
}

// IsPinEnabled reports whether a PIN is configured. It never fails: a
// missing record or unreadable storage reads as false.
func (s *Store) IsPinEnabled() bool {
	v, err := s.repo.Get(s.namespace, keyPinEnabled)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("quick unlock: reading pin-enabled failed", "namespace", s.namespace, "error", err)
		}
		return false
	}
	return string(v) == enabledValue
}

// DisablePin removes the PIN digest, the enabled flag and the session backup.
// It is idempotent.
func (s *Store) DisablePin() error {
	err := s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, k := range []string{keyPinHash, keyPinEnabled, keySessionBackup} {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "disable", Err: err}
	}
	s.logger.Info("quick unlock pin cleared", "namespace", s.namespace)
	return nil
}

// StoreSessionBackup saves token verbatim, replacing any previous backup.
func (s *Store) StoreSessionBackup(token string) error {
	if err := s.repo.Put(s.namespace, keySessionBackup, []byte(token)); err != nil {
		return &IOError{Op: "store session backup", Err: err}
	}
	return nil
}

// GetSessionBackup returns the stored token. ok is false when none is stored.
func (s *Store) GetSessionBackup() (token string, ok bool, err error) {
	v, err := s.repo.Get(s.namespace, keySessionBackup)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &IOError{Op: "read session backup", Err: err}
	}
	return string(v), true, nil
}

// HasStoredSession reports whether the PIN screen should be shown at all:
// a PIN is enabled and a session backup is present.
func (s *Store) HasStoredSession() bool {
	if !s.IsPinEnabled() {
		return false
	}
	_, ok, err := s.GetSessionBackup()
	if err != nil {
		s.logger.Warn("quick unlock: reading session backup failed", "namespace", s.namespace, "error", err)
		return false
	}
	return ok
}

// Status reports the store's configuration without exposing secrets.
func (s *Store) Status() Status {
	st := Status{Enabled: s.IsPinEnabled()}
	if _, ok, err := s.GetSessionBackup(); err == nil {
		st.HasSessionBackup = ok
	}
	if data, err := s.repo.Get(s.namespace, keyPinHash); err == nil {
		if rec, err := decodeRecord(data); err == nil {
			st.Scheme = rec.Scheme
		}
	}
	return st
}
