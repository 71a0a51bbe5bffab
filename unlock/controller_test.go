package unlock

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vdutts/vault/identity"
	idmemory "github.com/vdutts/vault/identity/memory"
	"github.com/vdutts/vault/pin"
	"github.com/vdutts/vault/storage/memory"
)

var quiet = slog.New(slog.DiscardHandler)

func testKDF() pin.KDFParams {
	return pin.KDFParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32}
}

func newStore(repo *memory.Repository) *pin.Store {
	return pin.NewStore(repo, pin.WithKDFParams(testKDF()), pin.WithLogger(quiet))
}

// stubProvider hands out a fixed token and records sign-outs.
type stubProvider struct {
	token    string
	err      error
	signOuts int
	outErr   error
}

func (p *stubProvider) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if p.err != nil {
		return identity.Session{}, p.err
	}
	return identity.Session{AccessToken: p.token, Email: email}, nil
}

func (p *stubProvider) SignOut(ctx context.Context) error {
	p.signOuts++
	return p.outErr
}

func TestScenarioA_SetupThenUnlockAfterRestart(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	provider := &stubProvider{token: "tok-1"}

	c := New(store, provider, WithLogger(quiet))
	assert.False(t, store.HasStoredSession())
	assert.Equal(t, AwaitingPrimaryLogin, c.Start(ctx))

	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	assert.Equal(t, PinSetupOffer, c.State())
	tok, ok, err := store.GetSessionBackup()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	require.NoError(t, c.SetupPin("4821", "4821"))
	assert.Equal(t, Unlocked, c.State())

	// Restart: fresh store and controller over the same medium.
	store = newStore(repo)
	c = New(store, provider, WithLogger(quiet))
	assert.True(t, store.HasStoredSession())
	assert.Equal(t, AwaitingPinEntry, c.Start(ctx))

	outcome, err := c.InputPin(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
	assert.Equal(t, Unlocked, c.State())

	sess, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, SourcePin, sess.Source)
	got, err := sess.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestScenarioB_SkipSetupRoutesToLogin(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	c := New(store, &stubProvider{token: "tok-1"}, WithLogger(quiet))

	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	require.NoError(t, c.SkipSetup())
	assert.Equal(t, Unlocked, c.State())
	assert.False(t, store.IsPinEnabled())

	c = New(newStore(repo), &stubProvider{token: "tok-2"}, WithLogger(quiet))
	assert.Equal(t, AwaitingPrimaryLogin, c.Start(ctx))
}

func TestScenarioC_WrongPinThenForgot(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))

	c := New(store, &stubProvider{}, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))

	outcome, err := c.InputPin(ctx, "9999")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIncorrect, outcome)
	assert.Equal(t, AwaitingPinEntry, c.State())
	assert.Equal(t, 0, c.Entered())
	assert.Equal(t, ConditionIncorrectPin, c.Condition())

	require.NoError(t, c.ForgotPin())
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
	assert.False(t, store.IsPinEnabled())
	_, ok, err := store.GetSessionBackup()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInputPin_NormalisesAndAutoSubmits(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("4821"))
	c := New(store, &stubProvider{}, WithLogger(quiet))
	c.Start(ctx)

	for _, typed := range []string{"4", "4x", "48", "48-2"} {
		outcome, err := c.InputPin(ctx, typed)
		require.NoError(t, err)
		assert.Equal(t, OutcomePending, outcome, "input %q", typed)
		assert.Equal(t, AwaitingPinEntry, c.State())
	}
	assert.Equal(t, 3, c.Entered())

	outcome, err := c.InputPin(ctx, "48-21999")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
}

func TestInputPin_NoLimitByDefault(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))
	c := New(store, &stubProvider{}, WithLogger(quiet))
	c.Start(ctx)

	for i := 0; i < 20; i++ {
		outcome, err := c.InputPin(ctx, "0000")
		require.NoError(t, err)
		require.Equal(t, OutcomeIncorrect, outcome)
	}
	assert.True(t, store.IsPinEnabled())

	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
}

func TestInputPin_MaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))
	c := New(store, &stubProvider{}, WithLogger(quiet), WithMaxAttempts(3))
	c.Start(ctx)

	for i := 0; i < 2; i++ {
		outcome, err := c.InputPin(ctx, "0000")
		require.NoError(t, err)
		require.Equal(t, OutcomeIncorrect, outcome)
	}
	outcome, err := c.InputPin(ctx, "0000")
	require.NoError(t, err)
	assert.Equal(t, OutcomeLockedOut, outcome)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
	assert.Equal(t, ConditionLockedOut, c.Condition())
	assert.False(t, store.IsPinEnabled())
}

func TestInputPin_SuccessResetsAttemptCount(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))
	c := New(store, &stubProvider{}, WithLogger(quiet), WithMaxAttempts(2))

	c.Start(ctx)
	outcome, _ := c.InputPin(ctx, "0000")
	require.Equal(t, OutcomeIncorrect, outcome)
	outcome, _ = c.InputPin(ctx, "1234")
	require.Equal(t, OutcomeUnlocked, outcome)

	c.Start(ctx)
	outcome, _ = c.InputPin(ctx, "0000")
	assert.Equal(t, OutcomeIncorrect, outcome)
	assert.True(t, store.IsPinEnabled())
}

// flakyRepo fails reads on demand.
type flakyRepo struct {
	*memory.Repository
	readErr error
}

func (r *flakyRepo) Get(namespace, key string) ([]byte, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	return r.Repository.Get(namespace, key)
}

func TestInputPin_StorageFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: memory.NewRepository()}
	store := pin.NewStore(repo, pin.WithKDFParams(testKDF()), pin.WithLogger(quiet))
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))
	c := New(store, &stubProvider{}, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))

	repo.readErr = errors.New("storage disabled")
	outcome, err := c.InputPin(ctx, "1234")
	assert.ErrorIs(t, err, pin.ErrIO)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, AwaitingPinEntry, c.State())
	assert.Equal(t, ConditionVerifyFailed, c.Condition())
	assert.Equal(t, 0, c.Entered())

	repo.readErr = nil
	outcome, err = c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
}

func TestInputPin_BackupClearedOutOfBand(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))
	c := New(store, &stubProvider{}, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))

	require.NoError(t, repo.Delete(pin.DefaultNamespace, "session-backup"))

	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
}

func TestRevalidation_RevokedSession(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	_, err := provider.Register("alice@example.com", "pw")
	require.NoError(t, err)

	repo := memory.NewRepository()
	c := New(newStore(repo), provider, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "alice@example.com", "pw"))
	require.NoError(t, c.SetupPin("4821", "4821"))
	sess, _ := c.Session()
	token, err := sess.Token()
	require.NoError(t, err)

	provider.Revoke(token)

	store := newStore(repo)
	c = New(store, provider, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))
	outcome, err := c.InputPin(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
	assert.Equal(t, ConditionSessionExpired, c.Condition())
	assert.False(t, store.IsPinEnabled())
}

func TestRevalidation_Disabled(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-never-issued"))
	require.NoError(t, store.SetupPin("1234"))

	c := New(store, provider, WithLogger(quiet), WithRevalidation(false))
	c.Start(ctx)
	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
}

func TestRevalidation_TokenFromEarlierProviderTrusted(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-never-issued"))
	require.NoError(t, store.SetupPin("1234"))

	c := New(store, provider, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))
	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
	assert.True(t, store.IsPinEnabled())
}

func TestRevalidation_ExpiredJWT(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": now.Add(-time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup(expired))
	require.NoError(t, store.SetupPin("1234"))

	c := New(store, &stubProvider{}, WithLogger(quiet), WithClock(func() time.Time { return now }))
	c.Start(ctx)
	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.False(t, store.HasStoredSession())
}

// unreachableValidator cannot reach its server.
type unreachableValidator struct{ stubProvider }

func (unreachableValidator) ValidateToken(context.Context, string) error {
	return identity.ErrUnavailable
}

func TestRevalidation_ProviderUnavailableTrustsCache(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	require.NoError(t, store.StoreSessionBackup("tok-1"))
	require.NoError(t, store.SetupPin("1234"))

	c := New(store, &unreachableValidator{}, WithLogger(quiet))
	c.Start(ctx)
	outcome, err := c.InputPin(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
}

func TestSetupPin_MismatchAndValidation(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	c := New(store, &stubProvider{token: "tok-1"}, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))

	err := c.SetupPin("1234", "1235")
	assert.ErrorIs(t, err, ErrPinMismatch)
	assert.Equal(t, PinSetupOffer, c.State())
	assert.Equal(t, ConditionPinMismatch, c.Condition())

	err = c.SetupPin("12a4", "12a4")
	assert.ErrorIs(t, err, pin.ErrValidation)
	assert.Equal(t, PinSetupOffer, c.State())
	assert.Equal(t, "PIN must be exactly 4 digits", c.Condition())
	assert.False(t, store.IsPinEnabled())

	require.NoError(t, c.SetupPin("1234", "1234"))
	assert.Equal(t, Unlocked, c.State())
	assert.Empty(t, c.Condition())
}

func TestSetupPin_StorageFailureKeepsOffer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	c := New(store, &stubProvider{token: "tok-1"}, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))

	repo.FailWrites(errors.New("quota exceeded"))
	err := c.SetupPin("1234", "1234")
	assert.ErrorIs(t, err, pin.ErrIO)
	assert.Equal(t, PinSetupOffer, c.State())
	assert.Equal(t, ConditionSetupFailed, c.Condition())

	// The user can still skip into the vault.
	require.NoError(t, c.SkipSetup())
	assert.Equal(t, Unlocked, c.State())
}

func TestSignIn_Failures(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	provider := &stubProvider{err: identity.ErrInvalidCredentials}
	c := New(newStore(repo), provider, WithLogger(quiet))
	c.Start(ctx)

	err := c.SignIn(ctx, "a@example.com", "bad")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())

	// A backup that cannot be written admits the user without an offer.
	provider.err = nil
	provider.token = "tok-1"
	repo.FailWrites(errors.New("quota exceeded"))
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	assert.Equal(t, Unlocked, c.State())
	assert.Equal(t, ConditionNoQuickUnlock, c.Condition())
}

func TestSignIn_AlwaysOffersSetup(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := newStore(repo)
	require.NoError(t, store.SetupPin("1111"))

	c := New(store, &stubProvider{token: "tok-1"}, WithLogger(quiet))
	require.Equal(t, AwaitingPrimaryLogin, c.Start(ctx), "pin without backup must not show the pin screen")
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	assert.Equal(t, PinSetupOffer, c.State())
}

func TestInvalidStateTransitions(t *testing.T) {
	ctx := context.Background()
	c := New(newStore(memory.NewRepository()), &stubProvider{token: "tok-1"}, WithLogger(quiet))
	c.Start(ctx)

	_, err := c.InputPin(ctx, "1234")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.SetupPin("1234", "1234"), ErrInvalidState)
	assert.ErrorIs(t, c.SkipSetup(), ErrInvalidState)
	assert.ErrorIs(t, c.ForgotPin(), ErrInvalidState)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())

	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	err = c.SignIn(ctx, "a@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "pin_setup_offer")
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	store := newStore(memory.NewRepository())
	provider := &stubProvider{token: "tok-1"}
	c := New(store, provider, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "a@example.com", "pw"))
	require.NoError(t, c.SetupPin("4821", "4821"))
	sess, ok := c.Session()
	require.True(t, ok)

	require.NoError(t, c.SignOut(ctx))
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
	assert.Equal(t, 1, provider.signOuts)
	assert.False(t, store.IsPinEnabled())
	_, ok, _ = store.GetSessionBackup()
	assert.False(t, ok)
	_, ok = c.Session()
	assert.False(t, ok)
	_, err := sess.Token()
	assert.ErrorIs(t, err, ErrSessionClosed)

	provider.outErr = identity.ErrUnavailable
	err = c.SignOut(ctx)
	assert.ErrorIs(t, err, identity.ErrUnavailable)
	assert.Equal(t, AwaitingPrimaryLogin, c.State())
}

func TestSignOut_RevokesResumedSession(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	_, err := provider.Register("alice@example.com", "pw")
	require.NoError(t, err)

	repo := memory.NewRepository()
	c := New(newStore(repo), provider, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "alice@example.com", "pw"))
	require.NoError(t, c.SetupPin("4821", "4821"))
	sess, _ := c.Session()
	token, _ := sess.Token()

	// Another sign-in elsewhere moves the provider's current session.
	provider.Resume("")

	c = New(newStore(repo), provider, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))
	outcome, err := c.InputPin(ctx, "4821")
	require.NoError(t, err)
	require.Equal(t, OutcomeUnlocked, outcome)

	require.NoError(t, c.SignOut(ctx))
	assert.ErrorIs(t, provider.ValidateToken(ctx, token), identity.ErrTokenInvalid)
}

func TestSignOut_FromPinEntryRevokesBackup(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	_, err := provider.Register("alice@example.com", "pw")
	require.NoError(t, err)

	repo := memory.NewRepository()
	c := New(newStore(repo), provider, WithLogger(quiet))
	c.Start(ctx)
	require.NoError(t, c.SignIn(ctx, "alice@example.com", "pw"))
	require.NoError(t, c.SetupPin("4821", "4821"))
	token, ok, err := newStore(repo).GetSessionBackup()
	require.NoError(t, err)
	require.True(t, ok)
	provider.Resume("")

	c = New(newStore(repo), provider, WithLogger(quiet))
	require.Equal(t, AwaitingPinEntry, c.Start(ctx))
	require.NoError(t, c.SignOut(ctx))

	assert.Equal(t, AwaitingPrimaryLogin, c.State())
	assert.ErrorIs(t, provider.ValidateToken(ctx, token), identity.ErrTokenInvalid)
}

func TestStart_LiveProviderSession(t *testing.T) {
	ctx := context.Background()
	provider := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	_, err := provider.Register("alice@example.com", "pw")
	require.NoError(t, err)
	_, err = provider.SignIn(ctx, "alice@example.com", "pw")
	require.NoError(t, err)

	c := New(newStore(memory.NewRepository()), provider, WithLogger(quiet))
	assert.Equal(t, Unlocked, c.Start(ctx))
	sess, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, SourceProvider, sess.Source)
}

func TestStateAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "awaiting_primary_login", AwaitingPrimaryLogin.String())
	assert.Equal(t, "unlocked", Unlocked.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "locked_out", OutcomeLockedOut.String())

	text, err := AwaitingPinEntry.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_pin_entry", string(text))
}
