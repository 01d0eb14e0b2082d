package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookstore/quantumstore/internal/events"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// ErrBadNotice is returned for a queued notice that cannot be delivered.
var ErrBadNotice = errors.New("malformed notice")

// noticeWire is the notification payload as it travels through the broker.
type noticeWire struct {
	OrderID  string          `json:"order_id"`
	ISBN     string          `json:"sku"`
	Title    string          `json:"title"`
	Kind     string          `json:"kind"`
	Quantity int32           `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
	Email    string          `json:"email"`
	Address  string          `json:"address"`
}

// NoticeFromEvent rebuilds the Notice carried by a notification.* event.
func NoticeFromEvent(e events.Event) (Notice, error) {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Payload)
	if err != nil {
		return Notice{}, fmt.Errorf("encode notification payload: %w", err)
	}
	var w noticeWire
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &w); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrBadNotice, err)
	}
	return Notice(w), nil
}

// Relay is the consuming side of Queued: it hands queued notices to the
// real collaborators.
type Relay struct {
	mailer  Mailer
	shipper Shipper
}

// NewRelay returns a Relay delivering to mailer and shipper.
func NewRelay(mailer Mailer, shipper Shipper) *Relay {
	return &Relay{mailer: mailer, shipper: shipper}
}

// Email handles notification.email events.
func (r *Relay) Email(ctx context.Context, e events.Event) error {
	n, err := NoticeFromEvent(e)
	if err != nil {
		return err
	}
	if n.Email == "" {
		return fmt.Errorf("%w: order %s has no email", ErrBadNotice, n.OrderID)
	}
	return r.mailer.SendPurchaseConfirmation(ctx, n)
}

// Shipping handles notification.shipping events.
func (r *Relay) Shipping(ctx context.Context, e events.Event) error {
	n, err := NoticeFromEvent(e)
	if err != nil {
		return err
	}
	if n.Address == "" {
		return fmt.Errorf("%w: order %s has no address", ErrBadNotice, n.OrderID)
	}
	return r.shipper.ArrangeShipment(ctx, n)
}
