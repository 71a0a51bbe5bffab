package unlock

import (
	"github.com/awnumar/memguard"
)

// Source records how a session was released.
type Source string

const (
	SourcePassword Source = "password"
	SourcePin      Source = "pin"
	SourceProvider Source = "provider"
)

// Session is the primary session token admitted by the gate. The token is
// kept in a memguard Enclave (encrypted in memory). Call Close when done.
type Session struct {
	token  *memguard.Enclave
	Source Source
}

func newSession(token string, source Source) *Session {
	s := &Session{Source: source}
	if token != "" {
		s.token = memguard.NewEnclave([]byte(token))
	}
	return s
}

// Token returns a copy of the session token.
func (s *Session) Token() (string, error) {
	if s == nil || s.token == nil {
		return "", ErrSessionClosed
	}
	buf, err := s.token.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Close drops the token. After Close, Token returns ErrSessionClosed.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.token = nil
}
