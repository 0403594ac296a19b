package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/models"
)

type RecentContact struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Subject   string               `json:"subject"`
	Status    models.ContactStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

type RecentAccount struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

type DashboardStats struct {
	TotalUsers      int64           `json:"total_users"`
	TotalClients    int64           `json:"total_clients"`
	TotalAdmins     int64           `json:"total_admins"`
	TotalContacts   int64           `json:"total_contacts"`
	PendingContacts int64           `json:"pending_contacts"`
	Orders          OrderStats      `json:"orders"`
	RecentContacts  []RecentContact `json:"recent_contacts"`
	RecentUsers     []RecentAccount `json:"recent_users"`
}

const recentLimit = 10

func GetDashboardStats(ctx context.Context, q DBTX) (*DashboardStats, error) {
	s := &DashboardStats{RecentContacts: []RecentContact{}, RecentUsers: []RecentAccount{}}

	err := q.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM accounts WHERE role = 'client'),
			(SELECT COUNT(*) FROM accounts WHERE role = 'admin'),
			(SELECT COUNT(*) FROM contact_messages),
			(SELECT COUNT(*) FROM contact_messages WHERE status = 'pending')`).Scan(
		&s.TotalUsers, &s.TotalClients, &s.TotalAdmins, &s.TotalContacts, &s.PendingContacts)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	orders, err := orderStats(ctx, q)
	if err != nil {
		return nil, err
	}
	s.Orders = *orders

	rows, err := q.QueryContext(ctx,
		`SELECT id, name, email, subject, status, created_at
		 FROM contact_messages ORDER BY created_at DESC, id DESC LIMIT $1`, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent contacts: %w", err)
	}
	for rows.Next() {
		var c RecentContact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Subject, &c.Status, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recent contact: %w", err)
		}
		s.RecentContacts = append(s.RecentContacts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, name, email, role, created_at
		 FROM accounts ORDER BY created_at DESC, id DESC LIMIT $1`, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a RecentAccount
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent account: %w", err)
		}
		s.RecentUsers = append(s.RecentUsers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return s, nil
}

type AccountStats struct {
	TotalContacts      int64 `json:"total_contacts"`
	PendingContacts    int64 `json:"pending_contacts"`
	InProgressContacts int64 `json:"in_progress_contacts"`
	ResolvedContacts   int64 `json:"resolved_contacts"`
	TotalOrders        int64 `json:"total_orders"`
}

// GetAccountStats summarises one account's contact messages and orders.
func GetAccountStats(ctx context.Context, q DBTX, accountID int64) (*AccountStats, error) {
	s := &AccountStats{}
	err := q.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'in-progress'),
			COUNT(*) FILTER (WHERE status = 'resolved'),
			(SELECT COUNT(*) FROM orders WHERE account_id = $1)
		 FROM contact_messages
		 WHERE account_id = $1`, accountID).Scan(
		&s.TotalContacts, &s.PendingContacts, &s.InProgressContacts, &s.ResolvedContacts, &s.TotalOrders)
	if err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	return s, nil
}
