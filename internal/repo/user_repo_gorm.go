package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"user-account-service/internal/domain"
)

// UserRepo is the gorm-backed domain.UserRepository. Each method runs a
// single statement; driver errors never leave this file unwrapped.
type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) (int64, error) {
	u.ID = 0
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDupKey(err) {
			return 0, &domain.Error{Kind: domain.KindConflict, Msg: domain.ErrEmailTaken.Msg, Err: err}
		}
		return 0, domain.Storage("create user", err)
	}
	return u.ID, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "find user by email", "email = ?", email)
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.first(ctx, "find user by id", "user_id = ?", id)
}

func (r *UserRepo) first(ctx context.Context, op string, cond string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(cond, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage(op, err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0)
	if err := r.db.WithContext(ctx).Order("user_id").Find(&users).Error; err != nil {
		return nil, domain.Storage("list users", err)
	}
	return users, nil
}

// Update writes only the fields set in p. Column names come from
// UserPatch.Columns, values are bound.
func (r *UserRepo) Update(ctx context.Context, id int64, p domain.UserPatch) error {
	if p.Empty() {
		return domain.ErrEmptyPatch
	}
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", id).
		Updates(p.Columns()).Error
	if err != nil {
		if isDupKey(err) {
			return &domain.Error{Kind: domain.KindConflict, Msg: domain.ErrEmailTaken.Msg, Err: err}
		}
		return domain.Storage("update user", err)
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", id).
		Update("password", hash).Error
	if err != nil {
		return domain.Storage("update password", err)
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("user_id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return domain.Storage("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// the modernc sqlite driver is not translated by gorm, match on text
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
