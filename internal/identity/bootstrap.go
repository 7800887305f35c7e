package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mkarimof/filedepot/internal/store"
)

// SeededUser defines a user to be created at startup.
type SeededUser struct {
	Username string
	Password string
}

// Bootstrap creates admin and seeded users idempotently.
type Bootstrap struct {
	users store.UserStore
	auth  *UserAuth
	log   *slog.Logger
}

// NewBootstrap creates a new bootstrap handler.
func NewBootstrap(users store.UserStore, auth *UserAuth, log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		users: users,
		auth:  auth,
		log:   log,
	}
}

// Run creates the admin user and any seeded users.
// Returns the number of users created (0 if all already exist).
func (b *Bootstrap) Run(ctx context.Context, admin SeededUser, seeded []SeededUser) (int, error) {
	var created int

	if admin.Username != "" {
		n, err := b.ensureUser(ctx, admin)
		if err != nil {
			return created, err
		}
		created += n
	}

	for _, s := range seeded {
		n, err := b.ensureUser(ctx, s)
		if err != nil {
			return created, err
		}
		created += n
	}

	return created, nil
}

func (b *Bootstrap) ensureUser(ctx context.Context, s SeededUser) (int, error) {
	_, err := b.users.GetUserByUsername(ctx, s.Username)
	if err == nil {
		b.log.Debug("user already exists", "username", s.Username)
		return 0, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	if _, err := b.auth.Register(ctx, s.Username, s.Password); err != nil {
		return 0, err
	}
	b.log.Info("created user", "username", s.Username)
	return 1, nil
}
