package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ProductStatus string

const (
	ProductActive       ProductStatus = "active"
	ProductInactive     ProductStatus = "inactive"
	ProductDiscontinued ProductStatus = "discontinued"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductActive, ProductInactive, ProductDiscontinued:
		return true
	}
	return false
}

type Product struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	Stock              int             `json:"stock"`
	SKU                string          `json:"sku"`
	Status             ProductStatus   `json:"status"`
	Category           string          `json:"category"`
	Brand              string          `json:"brand"`
	Images             []string        `json:"images"`
	Tags               []string        `json:"tags"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountStartsAt   *time.Time      `json:"discount_starts_at,omitempty"`
	DiscountEndsAt     *time.Time      `json:"discount_ends_at,omitempty"`
	CreatedBy          *int64          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ActiveDiscount returns the discount percentage in effect at now, or zero
// when the product has no discount or now falls outside its window.
func (p *Product) ActiveDiscount(now time.Time) decimal.Decimal {
	if !p.DiscountPercentage.IsPositive() {
		return decimal.Zero
	}
	if p.DiscountStartsAt != nil && now.Before(*p.DiscountStartsAt) {
		return decimal.Zero
	}
	if p.DiscountEndsAt != nil && now.After(*p.DiscountEndsAt) {
		return decimal.Zero
	}
	return p.DiscountPercentage
}

func (p *Product) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type CartItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	AddedAt   time.Time       `json:"added_at"`
	Product   *Product        `json:"product,omitempty"`
}

type Cart struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Items       []CartItem      `json:"items"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Recount refreshes TotalItems and TotalAmount from the current lines.
func (c *Cart) Recount() {
	c.TotalItems = 0
	c.TotalAmount = decimal.Zero
	for _, item := range c.Items {
		c.TotalItems += item.Quantity
		c.TotalAmount = c.TotalAmount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
}

type ShippingAddress struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	Landmark     string `json:"landmark,omitempty"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (a *ShippingAddress) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = ShippingAddress{}
		return nil
	}
	return errors.New("unsupported shipping address column type")
}

type ContactStatus string

const (
	ContactPending    ContactStatus = "pending"
	ContactInProgress ContactStatus = "in-progress"
	ContactResolved   ContactStatus = "resolved"
)

func (s ContactStatus) Valid() bool {
	switch s {
	case ContactPending, ContactInProgress, ContactResolved:
		return true
	}
	return false
}

type ContactMessage struct {
	ID            int64         `json:"id"`
	AccountID     int64         `json:"account_id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	Subject       string        `json:"subject"`
	Message       string        `json:"message"`
	Status        ContactStatus `json:"status"`
	AdminResponse string        `json:"admin_response"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type StockNotification struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	ProductID  int64      `json:"product_id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	Notified   bool       `json:"notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type OutboxEvent struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Recipient     string          `json:"recipient"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
