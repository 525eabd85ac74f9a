package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/store"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
)

// UserPatch is a partial user update. Nil fields are left unchanged; an
// empty Password keeps the current hash.
type UserPatch struct {
	Username *string
	Role     *string
	Password []byte
}

// UserService manages local accounts and offline login.
type UserService struct {
	repos store.Repositories
	log   logging.Logger
	now   func() time.Time
}

func NewUserService(repos store.Repositories, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		repos: repos,
		log:   log.With("module", "users"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pending local user. Email and username must be free
// among active users.
func (s *UserService) Register(ctx context.Context, email, username string, password []byte, role string) (*models.User, error) {
	email = common.NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email %q", common.ErrValidation, email)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrValidation)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password is required", common.ErrValidation)
	}
	if role == "" {
		role = models.RoleDriver
	}
	if role != models.RoleDriver && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}

	existing, err := s.repos.Users().Get(ctx, email)
	switch {
	case err == nil && !existing.Tombstoned:
		return nil, fmt.Errorf("user %s: %w", email, common.ErrAlreadyExists)
	case err == nil:
		// the row goes away once the deletion is synced and collected
		return nil, fmt.Errorf("user %s is deleted and awaiting sync: %w", email, common.ErrAlreadyExists)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}
	if holder, err := s.repos.Users().GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username %q is used by %s: %w", username, holder.Email, common.ErrAlreadyExists)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: cryptox.HashPassword(password),
		Role:         role,
		State:        models.StatePending,
		Revision:     1,
		UpdatedAt:    s.now(),
	}
	if err := s.repos.Users().Put(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user registered", "email", email, "username", username)
	return u, nil
}

// OfflineLogin checks password against the locally stored hash. login is
// either the email or the username. On success the last login time is
// recorded and the user becomes the current user of this device.
func (s *UserService) OfflineLogin(ctx context.Context, login string, password []byte) (*models.User, error) {
	u, err := s.lookup(ctx, login)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, err
	}

	ok, err := cryptox.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		s.log.Warn(ctx, "stored password hash is unreadable", "email", u.Email, "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	at := s.now()
	if err := s.repos.Users().Touch(ctx, u.Email, at); err != nil {
		return nil, err
	}
	u.LastLoginAt = at
	if err := s.repos.Metadata().Set(ctx, metadata.KeyCurrentUser, []byte(u.Email)); err != nil {
		return nil, err
	}
	return u, nil
}

// Current returns the user of the last successful login, or
// common.ErrorNotFound.
func (s *UserService) Current(ctx context.Context) (*models.User, error) {
	v, err := s.repos.Metadata().Get(ctx, metadata.KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, common.ErrorNotFound
	}
	u, err := s.repos.Users().Get(ctx, string(v))
	if err != nil {
		return nil, err
	}
	if u.Tombstoned {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// Logout forgets the current user.
func (s *UserService) Logout(ctx context.Context) error {
	return s.repos.Metadata().Delete(ctx, metadata.KeyCurrentUser)
}

// edit is the read-modify-write path for existing users; see
// RecordService.edit.
func (s *UserService) edit(ctx context.Context, email string, fn func(u *models.User) error) (*models.User, error) {
	email = common.NormalizeEmail(email)
	for attempt := 1; attempt <= maxEditAttempts; attempt++ {
		u, err := s.repos.Users().Get(ctx, email)
		if err != nil {
			return nil, err
		}
		expected := u.Revision
		if err := fn(u); err != nil {
			return nil, err
		}
		u.UpdatedAt = s.now()

		ok, err := s.repos.Users().Save(ctx, u, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			u.Revision = expected + 1
			return u, nil
		}
		s.log.Debug(ctx, "user changed during edit", "email", email, "attempt", attempt)
	}
	return nil, fmt.Errorf("user %s keeps changing: %w", email, common.ErrConflict)
}

// Update applies p. A synced user goes back to pending.
func (s *UserService) Update(ctx context.Context, email string, p UserPatch) error {
	_, err := s.edit(ctx, email, func(u *models.User) error {
		if u.Tombstoned {
			return fmt.Errorf("user %s: %w", u.Email, common.ErrTombstoned)
		}
		if p.Username != nil {
			name := strings.TrimSpace(*p.Username)
			if name == "" {
				return fmt.Errorf("%w: username is required", common.ErrValidation)
			}
			holder, err := s.repos.Users().GetByUsername(ctx, name)
			if err == nil && holder.Email != u.Email {
				return fmt.Errorf("username %q is used by %s: %w", name, holder.Email, common.ErrAlreadyExists)
			}
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			u.Username = name
		}
		if p.Role != nil {
			if *p.Role != models.RoleDriver && *p.Role != models.RoleAdmin {
				return fmt.Errorf("%w: unknown role %q", common.ErrValidation, *p.Role)
			}
			u.Role = *p.Role
		}
		if len(p.Password) > 0 {
			u.PasswordHash = cryptox.HashPassword(p.Password)
		}
		return nil
	})
	return err
}

// SoftDelete tombstones the user. A missing user is not an error.
func (s *UserService) SoftDelete(ctx context.Context, email string) error {
	u, err := s.edit(ctx, email, func(u *models.User) error {
		if u.Tombstoned {
			return errUnchanged
		}
		u.Tombstoned = true
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	cur, err := s.repos.Metadata().Get(ctx, metadata.KeyCurrentUser)
	if err != nil {
		return err
	}
	if string(cur) == u.Email {
		return s.Logout(ctx)
	}
	return nil
}

// List returns active users ordered by username.
func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	return s.repos.Users().GetAllActive(ctx)
}

func (s *UserService) lookup(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		u, err := s.repos.Users().Get(ctx, common.NormalizeEmail(login))
		if err != nil {
			return nil, err
		}
		if u.Tombstoned {
			return nil, common.ErrorNotFound
		}
		return u, nil
	}
	return s.repos.Users().GetByUsername(ctx, login)
}
