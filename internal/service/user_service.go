// Package service holds the account rules that sit between the HTTP
// handlers and the record store: required fields, email uniqueness,
// password hashing and verification, and mapping store results to
// typed *domain.Error outcomes.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"user-account-service/internal/core/cache"
	"user-account-service/internal/domain"
	"user-account-service/pkg/utils"
)

// Client-facing messages.
const (
	msgEmailExists          = "User with this email already exists"
	msgCreateFailed         = "Failed to create user"
	msgCredentialsRequired  = "Email and password are required"
	msgInvalidCredentials   = "Invalid email or password"
	msgAuthFailed           = "Failed to authenticate user"
	msgListFailed           = "Failed to fetch users"
	msgFetchFailed          = "Failed to fetch user"
	msgUserNotFound         = "User not found"
	msgNoFields             = "No updatable fields supplied"
	msgUpdateFailed         = "Failed to update user"
	msgPasswordsRequired    = "Current password and new password are required"
	msgWrongCurrentPassword = "Current password is incorrect"
	msgChangePasswordFailed = "Failed to change password"
	msgDeleteFailed         = "Failed to delete user"
	msgPasswordTooLong      = "Password must be at most 72 bytes"
)

const (
	keyAllUsers     = "users:all"
	dummyPassword   = "timing-equalizer"
	defaultCacheTTL = time.Minute
)

func userKey(id int64) string { return "users:" + strconv.FormatInt(id, 10) }

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	RoleID    int64
}

// validate checks presence in the order clients see the fields documented.
func (in RegisterInput) validate() error {
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"first_name", in.FirstName != ""},
		{"last_name", in.LastName != ""},
		{"email", in.Email != ""},
		{"password", in.Password != ""},
		{"role_id", in.RoleID != 0},
	} {
		if !f.present {
			return domain.Validation("Field " + f.name + " is required")
		}
	}
	return nil
}

type Option func(*UserService)

func WithLogger(l *zap.Logger) Option { return func(s *UserService) { s.log = l } }

// WithBcryptCost sets the hashing cost; out-of-range values use bcrypt's default.
func WithBcryptCost(cost int) Option { return func(s *UserService) { s.cost = cost } }

// WithCache enables read-through caching of user summaries. A nil cache is ignored.
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *UserService) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

type UserService struct {
	repo  domain.UserRepository
	log   *zap.Logger
	cost  int
	cache *cache.Cache
	ttl   time.Duration

	// compared against when the email is unknown, so a miss costs the same
	// as a wrong password
	dummyHash string
}

func NewUserService(repo domain.UserRepository, opts ...Option) *UserService {
	s := &UserService{repo: repo, log: zap.NewNop(), ttl: defaultCacheTTL}
	for _, o := range opts {
		o(s)
	}
	s.dummyHash, _ = utils.HashPassword(dummyPassword, s.cost)
	return s
}

// Register creates an account and returns its id.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}

	existing, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		return 0, domain.Storage(msgCreateFailed, err)
	}
	if existing != nil {
		return 0, domain.Conflict(msgEmailExists)
	}

	hash, err := s.hash(in.Password, msgCreateFailed)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.Create(ctx, &domain.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		RoleID:       in.RoleID,
	})
	switch {
	case domain.KindOf(err) == domain.KindConflict:
		// lost the race against a concurrent registration
		return 0, &domain.Error{Kind: domain.KindConflict, Msg: msgEmailExists, Err: err}
	case err != nil:
		return 0, domain.Storage(msgCreateFailed, err)
	case id <= 0:
		return 0, domain.Storage(msgCreateFailed, errors.New("store returned no id"))
	}

	s.invalidate(ctx, keyAllUsers)
	s.log.Info("user registered", zap.Int64("user_id", id), zap.Int64("role_id", in.RoleID))
	return id, nil
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.UserSummary, error) {
	if email == "" || password == "" {
		return nil, domain.Validation(msgCredentialsRequired)
	}

	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.Storage(msgAuthFailed, err)
	}
	if u == nil {
		utils.CheckPassword(password, s.dummyHash)
		return nil, domain.Unauthorized(msgInvalidCredentials)
	}
	if !utils.CheckPassword(password, u.PasswordHash) {
		return nil, domain.Unauthorized(msgInvalidCredentials)
	}

	sum := u.Summary()
	return &sum, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.UserSummary, error) {
	out, err := readThrough(ctx, s, keyAllUsers, func(ctx context.Context) (*[]domain.UserSummary, error) {
		users, err := s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		sums := make([]domain.UserSummary, 0, len(users))
		for i := range users {
			sums = append(sums, users[i].Summary())
		}
		return &sums, nil
	})
	if err != nil {
		return nil, domain.Storage(msgListFailed, err)
	}
	if out == nil || *out == nil {
		return []domain.UserSummary{}, nil
	}
	return *out, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.UserSummary, error) {
	out, err := readThrough(ctx, s, userKey(id), func(ctx context.Context) (*domain.UserSummary, error) {
		u, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, domain.ErrUserNotFound
		}
		sum := u.Summary()
		return &sum, nil
	})
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, domain.NotFound(msgUserNotFound)
	case err != nil:
		return nil, domain.Storage(msgFetchFailed, err)
	case out == nil:
		return nil, domain.NotFound(msgUserNotFound)
	}
	return out, nil
}

// UpdateProfile applies the set fields of p to an existing user.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, p domain.UserPatch) error {
	if _, err := s.mustExist(ctx, id, msgUpdateFailed); err != nil {
		return err
	}
	if p.Empty() {
		return domain.Validation(msgNoFields)
	}

	err := s.repo.Update(ctx, id, p)
	switch {
	case err == nil:
	case domain.KindOf(err) == domain.KindConflict:
		return &domain.Error{Kind: domain.KindConflict, Msg: msgEmailExists, Err: err}
	default:
		return domain.Storage(msgUpdateFailed, err)
	}

	s.invalidate(ctx, userKey(id), keyAllUsers)
	s.log.Info("user updated", zap.Int64("user_id", id))
	return nil
}

// ChangePassword replaces the password hash after verifying current.
func (s *UserService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if current == "" || next == "" {
		return domain.Validation(msgPasswordsRequired)
	}
	u, err := s.mustExist(ctx, id, msgChangePasswordFailed)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(current, u.PasswordHash) {
		return domain.Unauthorized(msgWrongCurrentPassword)
	}

	hash, err := s.hash(next, msgChangePasswordFailed)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return domain.Storage(msgChangePasswordFailed, err)
	}
	s.log.Info("password changed", zap.Int64("user_id", id))
	return nil
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if _, err := s.mustExist(ctx, id, msgDeleteFailed); err != nil {
		return err
	}

	err := s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		// deleted by someone else since the pre-check
		return domain.NotFound(msgUserNotFound)
	case err != nil:
		return domain.Storage(msgDeleteFailed, err)
	}

	s.invalidate(ctx, userKey(id), keyAllUsers)
	s.log.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

func (s *UserService) mustExist(ctx context.Context, id int64, failMsg string) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, domain.Storage(failMsg, err)
	}
	if u == nil {
		return nil, domain.NotFound(msgUserNotFound)
	}
	return u, nil
}

func (s *UserService) hash(pw, failMsg string) (string, error) {
	h, err := utils.HashPassword(pw, s.cost)
	if err != nil {
		if utils.IsTooLong(err) {
			return "", domain.Validation(msgPasswordTooLong)
		}
		return "", domain.Internal(failMsg, err)
	}
	return h, nil
}

func (s *UserService) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func readThrough[T any](ctx context.Context, s *UserService, key string, load func(context.Context) (*T, error)) (*T, error) {
	if s.cache == nil {
		return load(ctx)
	}
	return cache.GetOrLoadJSON(ctx, s.cache, key, s.ttl, load)
}
