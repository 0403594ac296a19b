package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

const accountColumns = `id, name, email, phone, password_hash, role, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.PasswordHash,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func CreateAccount(ctx context.Context, q DBTX, name, email, phone, passwordHash string, role models.Role) (*models.Account, error) {
	query := `
		INSERT INTO accounts (name, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRowContext(ctx, query,
		strings.TrimSpace(name), NormalizeEmail(email), strings.TrimSpace(phone), passwordHash, role))
	if err != nil {
		if database.IsUniqueViolation(err, "accounts_email_key") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return account, nil
}

func GetAccount(ctx context.Context, q DBTX, id int64) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func GetAccountByEmail(ctx context.Context, q DBTX, email string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, NormalizeEmail(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

type ProfileUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func UpdateProfile(ctx context.Context, q DBTX, id int64, u ProfileUpdate) (*models.Account, error) {
	var name, email, phone sql.NullString
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return nil, database.NewValidationError("name", "must not be empty")
		}
		name = sql.NullString{String: strings.TrimSpace(*u.Name), Valid: true}
	}
	if u.Email != nil {
		e := NormalizeEmail(*u.Email)
		if !ValidEmail(e) {
			return nil, database.NewValidationError("email", "is not a valid address")
		}
		email = sql.NullString{String: e, Valid: true}
	}
	if u.Phone != nil {
		phone = sql.NullString{String: strings.TrimSpace(*u.Phone), Valid: true}
	}

	query := `
		UPDATE accounts
		SET name = COALESCE($1, name),
		    email = COALESCE($2, email),
		    phone = COALESCE($3, phone),
		    updated_at = NOW()
		WHERE id = $4
		RETURNING ` + accountColumns

	account, err := scanAccount(q.QueryRowContext(ctx, query, name, email, phone, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		if database.IsUniqueViolation(err, "accounts_email_key") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return account, nil
}

func UpdatePasswordHash(ctx context.Context, q DBTX, id int64, hash string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAccountNotFound
	}
	return nil
}

type AccountFilter struct {
	Role   models.Role
	Search string
	Page   PageRequest
}

func ListAccounts(ctx context.Context, q DBTX, f AccountFilter) (*OffsetPage, error) {
	page := f.Page.Normalize(DefaultPageSize)

	var c conditions
	if f.Role != "" {
		c.add("role = ?", f.Role)
	}
	if f.Search != "" {
		c.add("(name ILIKE ? OR email ILIKE ?)", likePattern(f.Search), likePattern(f.Search))
	}

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`+c.where(), c.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}

	limit := c.next(page.PageSize)
	offset := c.next(page.Offset())
	query := `SELECT ` + accountColumns + ` FROM accounts` + c.where() +
		` ORDER BY created_at DESC, id DESC LIMIT ` + limit + ` OFFSET ` + offset

	rows, err := q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(accounts, total, page), nil
}

// UpdateRole changes another account's role. Admins cannot change their own.
func UpdateRole(ctx context.Context, q DBTX, actorID, id int64, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, database.NewValidationError("role", "must be admin or client")
	}
	if actorID == id {
		return nil, database.ErrSelfModification
	}

	account, err := scanAccount(q.QueryRowContext(ctx,
		`UPDATE accounts SET role = $1, updated_at = NOW() WHERE id = $2 RETURNING `+accountColumns,
		role, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	return account, nil
}

// DeleteAccount removes another account along with its cart, contact
// messages and stock notifications. Orders are kept with a null owner.
func DeleteAccount(ctx context.Context, q DBTX, actorID, id int64) error {
	if actorID == id {
		return database.ErrSelfModification
	}

	result, err := q.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAccountNotFound
	}
	return nil
}

// PromoteAdmin grants the admin role to the account with the given email.
// It reports whether such an account exists.
func PromoteAdmin(ctx context.Context, q DBTX, email string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE accounts SET role = $1, updated_at = NOW() WHERE email = $2 AND role <> $1`,
		models.RoleAdmin, NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("promote admin: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	err = q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}
