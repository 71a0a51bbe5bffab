package pin

import "log/slog"

// Option configures a Store.
type Option func(*Store)

// WithNamespace scopes the store's keys. The default, DefaultNamespace, makes
// the gate per-device.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// WithKDFParams sets the Argon2id parameters used when a PIN is set up.
func WithKDFParams(params KDFParams) Option {
	return func(s *Store) {
		s.kdf = params
	}
}

// WithLegacyHash makes the store write unsalted SHA-256 digests that older
// releases can read, and disables upgrading them on verify.
func WithLegacyHash() Option {
	return func(s *Store) {
		s.legacy = true
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}
