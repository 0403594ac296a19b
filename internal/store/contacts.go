package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
)

const contactColumns = `id, account_id, name, email, phone, subject, message, status, admin_response, created_at, updated_at`

func scanContact(row rowScanner) (*models.ContactMessage, error) {
	m := &models.ContactMessage{}
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.Name,
		&m.Email,
		&m.Phone,
		&m.Subject,
		&m.Message,
		&m.Status,
		&m.AdminResponse,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (in *ContactInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)

	if in.Name == "" || in.Email == "" || in.Subject == "" || in.Message == "" {
		return database.NewValidationError("", "name, email, subject, and message are required")
	}
	if !ValidEmail(in.Email) {
		return database.NewValidationError("email", "is not a valid address")
	}
	if err := validateLength("subject", in.Subject, 200); err != nil {
		return err
	}
	return validateLength("message", in.Message, 5000)
}

// CreateContact stores the message and, when adminInbox is set, queues a
// contact.received notification for it in the same transaction.
func CreateContact(ctx context.Context, db *sql.DB, accountID int64, in ContactInput, adminInbox string) (*models.ContactMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var msg *models.ContactMessage
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		msg, err = scanContact(tx.QueryRowContext(ctx,
			`INSERT INTO contact_messages (account_id, name, email, phone, subject, message)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+contactColumns,
			accountID, in.Name, in.Email, in.Phone, in.Subject, in.Message))
		if err != nil {
			return fmt.Errorf("create contact message: %w", err)
		}

		if adminInbox == "" {
			return nil
		}
		return Enqueue(ctx, tx, events.KindContactReceived, adminInbox, events.ContactReceived{
			Name:    msg.Name,
			Email:   msg.Email,
			Phone:   msg.Phone,
			Subject: msg.Subject,
			Message: msg.Message,
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func ListAccountContacts(ctx context.Context, q DBTX, accountID int64) ([]models.ContactMessage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contact_messages WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ContactMessage{}
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}

func ListContacts(ctx context.Context, q DBTX, status models.ContactStatus, page PageRequest) (*OffsetPage, error) {
	page = page.Normalize(20)

	var c conditions
	if status != "" {
		if !status.Valid() {
			return nil, database.NewValidationError("status", "must be pending, in-progress or resolved")
		}
		c.add("status = ?", status)
	}

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_messages`+c.where(), c.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count contact messages: %w", err)
	}

	where := c.where()
	limit := c.next(page.PageSize)
	offset := c.next(page.Offset())
	rows, err := q.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contact_messages`+where+
			` ORDER BY created_at DESC, id DESC LIMIT `+limit+` OFFSET `+offset, c.args...)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ContactMessage{}
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(messages, total, page), nil
}

// UpdateContact sets the status and, when response is non-nil, the admin response.
func UpdateContact(ctx context.Context, q DBTX, id int64, status models.ContactStatus, response *string) (*models.ContactMessage, error) {
	if !status.Valid() {
		return nil, database.NewValidationError("status", "must be pending, in-progress or resolved")
	}

	var resp sql.NullString
	if response != nil {
		resp = sql.NullString{String: strings.TrimSpace(*response), Valid: true}
	}

	msg, err := scanContact(q.QueryRowContext(ctx,
		`UPDATE contact_messages
		 SET status = $1, admin_response = COALESCE($2, admin_response), updated_at = NOW()
		 WHERE id = $3
		 RETURNING `+contactColumns, status, resp, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrContactNotFound
		}
		return nil, fmt.Errorf("update contact message: %w", err)
	}
	return msg, nil
}
