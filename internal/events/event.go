package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Notification kinds carried through the outbox.
const (
	KindOrderPlaced        = "order.placed"
	KindOrderStatusChanged = "order.status_changed"
	KindBackInStock        = "product.back_in_stock"
	KindContactReceived    = "contact.received"
)

// Envelope is the message published for every outbox row.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds an envelope with a fresh id and the encoded payload.
func New(kind, recipient string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: recipient,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func FromOutbox(e models.OutboxEvent) Envelope {
	return Envelope{
		ID:        e.ID,
		Kind:      e.Kind,
		Recipient: e.Recipient,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}

func (e Envelope) Decode(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

type OrderLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderPlaced struct {
	OrderNumber       string                 `json:"order_number"`
	CustomerName      string                 `json:"customer_name"`
	PaymentMethod     models.PaymentMethod   `json:"payment_method"`
	Items             []OrderLine            `json:"items"`
	Summary           models.OrderSummary    `json:"summary"`
	ShippingAddress   models.ShippingAddress `json:"shipping_address"`
	EstimatedDelivery time.Time              `json:"estimated_delivery"`
	PlacedAt          time.Time              `json:"placed_at"`
}

func NewOrderPlaced(o *models.Order, customerName string) OrderPlaced {
	p := OrderPlaced{
		OrderNumber:     o.OrderNumber,
		CustomerName:    customerName,
		PaymentMethod:   o.PaymentMethod,
		Summary:         o.Summary,
		ShippingAddress: o.ShippingAddress,
		PlacedAt:        o.CreatedAt,
	}
	if o.EstimatedDelivery != nil {
		p.EstimatedDelivery = *o.EstimatedDelivery
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, OrderLine{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}
	return p
}

type OrderStatusChanged struct {
	OrderNumber    string             `json:"order_number"`
	CustomerName   string             `json:"customer_name"`
	Status         models.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	Reason         string             `json:"reason,omitempty"`
}

type BackInStock struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	CustomerName string          `json:"customer_name"`
}

type ContactReceived struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
