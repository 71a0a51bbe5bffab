package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/vdutts/vault/config"
	"github.com/vdutts/vault/identity"
	"github.com/vdutts/vault/identity/gotrue"
	idmemory "github.com/vdutts/vault/identity/memory"
	"github.com/vdutts/vault/pin"
	"github.com/vdutts/vault/storage"
	bboltstorage "github.com/vdutts/vault/storage/bbolt"
	"github.com/vdutts/vault/storage/memory"
	sqlitestorage "github.com/vdutts/vault/storage/sqlite"
	"github.com/vdutts/vault/unlock"
)

// app bundles the collaborators every command needs.
type app struct {
	store     *pin.Store
	provider  identity.Provider
	ctrl      *unlock.Controller
	closeRepo func() error
}

func openApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg, logger)
	if err != nil {
		closeRepo()
		return nil, err
	}
	return newApp(repo, closeRepo, provider, cfg, logger), nil
}

func newApp(repo storage.Repository, closeRepo func() error, provider identity.Provider, cfg config.Config, logger *slog.Logger) *app {
	storeOpts := []pin.Option{
		pin.WithNamespace(cfg.Namespace),
		pin.WithKDFParams(cfg.KDFParams()),
		pin.WithLogger(logger),
	}
	if cfg.LegacyHash {
		storeOpts = append(storeOpts, pin.WithLegacyHash())
	}
	store := pin.NewStore(repo, storeOpts...)
	ctrl := unlock.New(store, provider,
		unlock.WithLogger(logger),
		unlock.WithRevalidation(cfg.Revalidate),
		unlock.WithMaxAttempts(cfg.MaxAttempts),
	)
	return &app{store: store, provider: provider, ctrl: ctrl, closeRepo: closeRepo}
}

func (a *app) Close() error {
	if a.closeRepo == nil {
		return nil
	}
	return a.closeRepo()
}

func openRepository(cfg config.Config) (storage.Repository, func() error, error) {
	if cfg.Backend == config.BackendMemory {
		return memory.NewRepository(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		repo, err := sqlitestorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "vault.sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return repo, repo.Close, nil
	default:
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "vault.db"), &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return repo, repo.Close, nil
	}
}

func newProvider(cfg config.Config, logger *slog.Logger) (identity.Provider, error) {
	if cfg.Identity.URL != "" {
		return gotrue.New(cfg.Identity.URL, cfg.Identity.APIKey, gotrue.WithLogger(logger)), nil
	}
	logger.Warn("no identity.url configured, using the in-process development provider")
	p := idmemory.NewProvider(idmemory.WithBcryptCost(bcrypt.MinCost))
	for _, u := range cfg.Identity.DevUsers {
		email, password, _ := strings.Cut(u, ":")
		if _, err := p.Register(email, password); err != nil {
			return nil, fmt.Errorf("registering development user: %w", err)
		}
	}
	return p, nil
}
