// Package notify contains the collaborators a completed purchase is handed
// to: the mail service and the shipping service.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bookstore/quantumstore/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const storeName = "Quantum book store"

// Notice is the completed order as seen by the collaborators.
type Notice struct {
	OrderID  string
	ISBN     string
	Title    string
	Kind     string
	Quantity int32
	Total    decimal.Decimal
	Email    string
	Address  string
}

func (n Notice) payload() map[string]interface{} {
	return map[string]interface{}{
		"order_id": n.OrderID,
		"sku":      n.ISBN,
		"title":    n.Title,
		"kind":     n.Kind,
		"quantity": n.Quantity,
		"total":    n.Total.StringFixed(2),
		"email":    n.Email,
		"address":  n.Address,
	}
}

// Mailer sends the purchase confirmation (and, for digital books, the book
// itself) to the buyer.
type Mailer interface {
	SendPurchaseConfirmation(ctx context.Context, n Notice) error
}

// Shipper arranges delivery of physical copies.
type Shipper interface {
	ArrangeShipment(ctx context.Context, n Notice) error
}

// Console prints customer-facing delivery lines and logs them.
// It serves as both Mailer and Shipper.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log *zap.Logger
}

// NewConsole returns a Console printing to out.
func NewConsole(out io.Writer, log *zap.Logger) *Console {
	return &Console{out: out, log: log}
}

// SendPurchaseConfirmation prints the mail line matching the book kind.
func (c *Console) SendPurchaseConfirmation(ctx context.Context, n Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch n.Kind {
	case "ebook":
		fmt.Fprintf(c.out, "%s: Emailing EBook %s to %s\n", storeName, n.Title, n.Email)
	case "audio":
		fmt.Fprintf(c.out, "%s: Sending AudioBook %s to %s\n", storeName, n.Title, n.Email)
	default:
		fmt.Fprintf(c.out, "%s: sending email to %s\n", storeName, n.Email)
	}
	c.log.Info("Purchase confirmation sent",
		zap.String("order_id", n.OrderID),
		zap.String("sku", n.ISBN),
		zap.String("email", n.Email),
	)
	return nil
}

// ArrangeShipment prints the shipping lines for a paper order.
func (c *Console) ArrangeShipment(ctx context.Context, n Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s: shipping to %s\n", storeName, n.Address)
	fmt.Fprintf(c.out, "%s: shipping %d copies of %s\n", storeName, n.Quantity, n.Title)
	c.log.Info("Shipment arranged",
		zap.String("order_id", n.OrderID),
		zap.String("sku", n.ISBN),
		zap.Int32("quantity", n.Quantity),
	)
	return nil
}

// NotificationPublisher is the slice of events.Publisher used here.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// Queued forwards notices to RabbitMQ for an out-of-process worker.
type Queued struct {
	pub NotificationPublisher
}

// NewQueued returns a Queued publishing through pub.
func NewQueued(pub NotificationPublisher) *Queued {
	return &Queued{pub: pub}
}

// SendPurchaseConfirmation queues a notification.email event.
func (q *Queued) SendPurchaseConfirmation(ctx context.Context, n Notice) error {
	return q.pub.PublishNotification(ctx, events.EventTypeNotificationEmail, n.payload())
}

// ArrangeShipment queues a notification.shipping event.
func (q *Queued) ArrangeShipment(ctx context.Context, n Notice) error {
	return q.pub.PublishNotification(ctx, events.EventTypeNotificationShipping, n.payload())
}

// MailFanout delivers to every mailer; all are tried even if one fails.
type MailFanout []Mailer

// SendPurchaseConfirmation calls every mailer and joins their errors.
func (f MailFanout) SendPurchaseConfirmation(ctx context.Context, n Notice) error {
	var errs []error
	for _, m := range f {
		if err := m.SendPurchaseConfirmation(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShipFanout is MailFanout for shippers.
type ShipFanout []Shipper

// ArrangeShipment calls every shipper and joins their errors.
func (f ShipFanout) ArrangeShipment(ctx context.Context, n Notice) error {
	var errs []error
	for _, s := range f {
		if err := s.ArrangeShipment(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
