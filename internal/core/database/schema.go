package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	rolesTable      = "roles"
	usersEmailIndex = "idx_users_email"

	maxReportedDuplicates = 10
)

// ErrDuplicateEmails means an existing users table holds the same email more
// than once, so the unique email index cannot be built. The rows have to be
// merged or removed before the service can start.
var ErrDuplicateEmails = errors.New("users table has duplicate emails")

// EnsureUserSchema creates the users table and its unique email index if
// they do not exist yet. It is safe to run on every start.
func EnsureUserSchema(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	stmts, err := userDDL(tx.Dialector.Name(), tx.Migrator().HasTable(rolesTable))
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := tx.Exec(s).Error; err != nil {
			if dups := duplicateEmails(tx); len(dups) > 0 {
				return fmt.Errorf("ensure users schema: %w: %s", ErrDuplicateEmails, strings.Join(dups, ", "))
			}
			return fmt.Errorf("ensure users schema: %w", err)
		}
	}
	return nil
}

// duplicateEmails lists up to maxReportedDuplicates emails that occur more
// than once. Lookup errors yield nil.
func duplicateEmails(tx *gorm.DB) []string {
	var emails []string
	err := tx.Table("users").
		Select("email").
		Group("email").
		Having("COUNT(*) > 1").
		Order("email").
		Limit(maxReportedDuplicates).
		Pluck("email", &emails).Error
	if err != nil {
		return nil
	}
	return emails
}

// userDDL returns the statements for dialect. mysql and postgres refuse a
// foreign key to a missing table, so the role reference is only declared
// there once roles exists.
func userDDL(dialect string, hasRoles bool) ([]string, error) {
	switch dialect {
	case "sqlite":
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id INTEGER PRIMARY KEY AUTOINCREMENT,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				email TEXT NOT NULL,
				password TEXT NOT NULL,
				role_id INTEGER NOT NULL,
				FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS ` + usersEmailIndex + ` ON users (email)`,
		}, nil
	case "mysql":
		fk := ""
		if hasRoles {
			fk = `,
				CONSTRAINT fk_users_role FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE`
		}
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				first_name VARCHAR(255) NOT NULL,
				last_name VARCHAR(255) NOT NULL,
				email VARCHAR(191) NOT NULL,
				password VARCHAR(255) NOT NULL,
				role_id BIGINT NOT NULL,
				UNIQUE KEY ` + usersEmailIndex + ` (email)` + fk + `
			) DEFAULT CHARSET=utf8mb4`,
		}, nil
	case "postgres":
		ref := ""
		if hasRoles {
			ref = ` REFERENCES roles(role_id) ON DELETE CASCADE`
		}
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id BIGSERIAL PRIMARY KEY,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				email TEXT NOT NULL,
				password TEXT NOT NULL,
				role_id BIGINT NOT NULL` + ref + `
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS ` + usersEmailIndex + ` ON users (email)`,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, dialect)
	}
}
