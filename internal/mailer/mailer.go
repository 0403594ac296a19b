package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/smtp"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jordan-wright/email"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

var ErrUnknownKind = errors.New("no template for event kind")

type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

var statusMessages = map[models.OrderStatus]string{
	models.OrderStatusPending:    "Your order has been received.",
	models.OrderStatusConfirmed:  "Your order has been confirmed and is being prepared.",
	models.OrderStatusProcessing: "Your order is being processed and will be shipped soon.",
	models.OrderStatusShipped:    "Great news! Your order has been shipped.",
	models.OrderStatusDelivered:  "Your order has been delivered successfully.",
	models.OrderStatusCancelled:  "Your order has been cancelled.",
}

var funcs = map[string]interface{}{
	"money": func(d decimal.Decimal) string { return "₹" + d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006") },
	"upper": func(v interface{}) string { return strings.ToUpper(fmt.Sprint(v)) },
	"statusMessage": func(s models.OrderStatus) string {
		return statusMessages[s]
	},
}

type kindTemplate struct {
	subject func(payload interface{}) string
	payload func() interface{}
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

func newTemplate(name, html, text string, payload func() interface{}, subject func(interface{}) string) kindTemplate {
	return kindTemplate{
		subject: subject,
		payload: payload,
		html:    htmltemplate.Must(htmltemplate.New(name).Funcs(funcs).Parse(html)),
		text:    texttemplate.Must(texttemplate.New(name).Funcs(funcs).Parse(text)),
	}
}

var templates = map[string]kindTemplate{
	events.KindOrderPlaced: newTemplate("order_placed", orderPlacedHTML, orderPlacedText,
		func() interface{} { return &events.OrderPlaced{} },
		func(p interface{}) string { return "Order Confirmation - " + p.(*events.OrderPlaced).OrderNumber }),
	events.KindOrderStatusChanged: newTemplate("status_changed", statusChangedHTML, statusChangedText,
		func() interface{} { return &events.OrderStatusChanged{} },
		func(p interface{}) string { return "Order Update - " + p.(*events.OrderStatusChanged).OrderNumber }),
	events.KindBackInStock: newTemplate("back_in_stock", backInStockHTML, backInStockText,
		func() interface{} { return &events.BackInStock{} },
		func(p interface{}) string { return p.(*events.BackInStock).ProductName + " is Back in Stock!" }),
	events.KindContactReceived: newTemplate("contact_received", contactReceivedHTML, contactReceivedText,
		func() interface{} { return &events.ContactReceived{} },
		func(p interface{}) string { return "New Contact Form Submission: " + p.(*events.ContactReceived).Subject }),
}

// Render builds the email for an event envelope.
func Render(env events.Envelope) (*Message, error) {
	tmpl, ok := templates[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, env.Kind)
	}

	payload := tmpl.payload()
	if err := env.Decode(payload); err != nil {
		return nil, err
	}

	var html, text bytes.Buffer
	if err := tmpl.html.Execute(&html, payload); err != nil {
		return nil, fmt.Errorf("render %s html: %w", env.Kind, err)
	}
	if err := tmpl.text.Execute(&text, payload); err != nil {
		return nil, fmt.Errorf("render %s text: %w", env.Kind, err)
	}

	return &Message{
		To:      []string{env.Recipient},
		Subject: tmpl.subject(payload),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// SMTPSender delivers messages through an authenticated SMTP relay.
type SMTPSender struct {
	from string
	addr string
	auth smtp.Auth
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		from: cfg.From,
		addr: cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth: auth,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = msg.To
	e.Subject = msg.Subject
	e.HTML = []byte(msg.HTML)
	e.Text = []byte(msg.Text)

	if err := e.Send(s.addr, s.auth); err != nil {
		return fmt.Errorf("send %q to %v: %w", msg.Subject, msg.To, err)
	}
	return nil
}
