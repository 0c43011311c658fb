package domain

import "context"

// User is a row of the users table. PasswordHash only ever holds bcrypt output.
type User struct {
	ID           int64  `gorm:"column:user_id;primaryKey;autoIncrement" json:"user_id"`
	FirstName    string `gorm:"column:first_name;not null" json:"first_name"`
	LastName     string `gorm:"column:last_name;not null" json:"last_name"`
	Email        string `gorm:"column:email;not null;uniqueIndex:idx_users_email" json:"email"`
	PasswordHash string `gorm:"column:password;not null" json:"-"`
	RoleID       int64  `gorm:"column:role_id;not null" json:"role_id"`
}

func (User) TableName() string { return "users" }

// UserSummary is the client-facing projection of a User.
type UserSummary struct {
	ID        int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	RoleID    int64  `json:"role_id"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		RoleID:    u.RoleID,
	}
}

// UserPatch carries a profile update. Unset fields are left untouched.
type UserPatch struct {
	FirstName Optional[string]
	LastName  Optional[string]
	Email     Optional[string]
	RoleID    Optional[int64]
}

// Empty reports whether no field is set.
func (p UserPatch) Empty() bool {
	return !p.FirstName.IsSet() && !p.LastName.IsSet() && !p.Email.IsSet() && !p.RoleID.IsSet()
}

// Columns maps the set fields to their column names.
func (p UserPatch) Columns() map[string]any {
	cols := make(map[string]any, 4)
	if v, ok := p.FirstName.Get(); ok {
		cols["first_name"] = v
	}
	if v, ok := p.LastName.Get(); ok {
		cols["last_name"] = v
	}
	if v, ok := p.Email.Get(); ok {
		cols["email"] = v
	}
	if v, ok := p.RoleID.Get(); ok {
		cols["role_id"] = v
	}
	return cols
}

// UserRepository is the Record Store contract. Lookups return (nil, nil)
// when no row matches; every failure is a *Error.
type UserRepository interface {
	Create(ctx context.Context, u *User) (int64, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id int64, p UserPatch) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	Delete(ctx context.Context, id int64) error
}
