package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/bookstore/quantumstore/internal/events"
	"github.com/bookstore/quantumstore/internal/metrics"
	"github.com/bookstore/quantumstore/internal/notify"
	"github.com/bookstore/quantumstore/internal/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrBookNotFound is returned when no book has the requested ISBN
	ErrBookNotFound = repo.ErrBookNotFound

	// ErrBookAlreadyExists is returned when adding a book whose ISBN is taken
	ErrBookAlreadyExists = repo.ErrBookAlreadyExists

	// ErrInvalidRequest wraps every input validation failure
	ErrInvalidRequest = errors.New("invalid request")
)

// EventPublisher is the slice of events.Publisher the store needs.
type EventPublisher interface {
	PublishBookCreated(ctx context.Context, payload map[string]interface{}) error
	PublishOrderPurchased(ctx context.Context, payload map[string]interface{}) error
}

// Settings tune a Store. Zero values fall back to defaults.
type Settings struct {
	Currency      string
	NotifyTimeout time.Duration
}

// Store is the book store: it adds books, sells them and lists them.
type Store struct {
	repo      *repo.CatalogRepository
	mailer    notify.Mailer
	shipper   notify.Shipper
	publisher EventPublisher
	metrics   *metrics.Metrics
	validate  *validator.Validate
	log       *zap.Logger

	currency      string
	notifyTimeout time.Duration

	pending sync.WaitGroup
}

// New creates a store. publisher may be nil, in which case no events are
// emitted.
func New(catalog *repo.CatalogRepository, mailer notify.Mailer, shipper notify.Shipper, publisher EventPublisher, m *metrics.Metrics, log *zap.Logger, settings Settings) *Store {
	if settings.Currency == "" {
		settings.Currency = "USD"
	}
	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = 5 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &Store{
		repo:          catalog,
		mailer:        mailer,
		shipper:       shipper,
		publisher:     publisher,
		metrics:       m,
		validate:      validator.New(),
		log:           log,
		currency:      settings.Currency,
		notifyTimeout: settings.NotifyTimeout,
	}
}

// Close waits for in-flight event publications.
func (s *Store) Close() {
	s.pending.Wait()
}

// AddRequest describes a book to add. Variant fields that do not apply to
// Kind are ignored.
type AddRequest struct {
	Kind   books.Kind      `validate:"required,oneof=paper ebook audio showcase"`
	ISBN   string          `validate:"omitempty,max=50"`
	Title  string          `validate:"required,max=255"`
	Author string          `validate:"required,max=255"`
	Year   int             `validate:"gte=0,lte=9999"`
	Price  decimal.Decimal `validate:"-"`
	Stock  int32           `validate:"gte=0"`

	FileType   string `validate:"omitempty,max=20"`
	FileSizeKB int64  `validate:"gte=0"`

	Format          string `validate:"omitempty,max=20"`
	Narrator        string `validate:"omitempty,max=255"`
	DurationMinutes int32  `validate:"gte=0"`
}

// AddBook validates req and stores the book.
func (s *Store) AddBook(ctx context.Context, req AddRequest) (books.Book, error) {
	req.ISBN = strings.TrimSpace(req.ISBN)
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, invalid(err)
	}

	if req.Kind == books.KindShowcase {
		req.Price = decimal.Zero
		req.Stock = 0
	} else if _, err := priceCents(req.Price); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	record := toRecord(req, s.currency)
	if err := s.repo.CreateBook(ctx, record); err != nil {
		return nil, err
	}

	book := fromRecord(record)
	s.metrics.BooksAdded.WithLabelValues(string(book.Kind())).Inc()
	s.log.Info("Book added",
		zap.String("sku", record.SKU),
		zap.String("kind", record.Kind),
		zap.String("title", record.Title),
	)

	s.publishAsync("book created", record.SKU, func(ctx context.Context, p EventPublisher) error {
		return p.PublishBookCreated(ctx, map[string]interface{}{
			"sku":      record.SKU,
			"kind":     record.Kind,
			"title":    record.Title,
			"author":   record.Author,
			"year":     record.Year,
			"price":    record.Price,
			"currency": record.Currency,
			"stock":    record.Stock,
			"for_sale": book.ForSale(),
		})
	})

	return book, nil
}

// BuyRequest is a purchase as entered by the customer.
type BuyRequest struct {
	ISBN     string
	Quantity int32
	Email    string
	Address  string
}

// Receipt confirms a completed purchase.
type Receipt struct {
	OrderID   string
	ISBN      string
	Title     string
	Kind      books.Kind
	Quantity  int32
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Currency  string
	Remaining int32

	// NotifyErrors holds collaborator failures. The sale stands regardless.
	NotifyErrors []error
}

// Buy sells req.Quantity copies of the book with req.ISBN.
//
// Showcase books are refused whatever the quantity. A quantity beyond stock
// is refused and stock is left as it was. Otherwise stock is decremented,
// the order is recorded and the mail and shipping collaborators are invoked
// on a best-effort basis: their failures are reported on the receipt and do
// not undo the sale.
func (s *Store) Buy(ctx context.Context, req BuyRequest) (*Receipt, error) {
	req.ISBN = strings.TrimSpace(req.ISBN)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)

	if req.ISBN == "" {
		return nil, s.reject("invalid_request", fmt.Errorf("%w: isbn is required", ErrInvalidRequest))
	}

	record, err := s.repo.GetBook(ctx, req.ISBN)
	if err != nil {
		if errors.Is(err, repo.ErrBookNotFound) {
			return nil, s.reject("not_found", fmt.Errorf("%w: %s", ErrBookNotFound, req.ISBN))
		}
		return nil, err
	}
	book := fromRecord(record)

	purchase := books.Purchase{Quantity: req.Quantity, Email: req.Email, Address: req.Address}
	if !book.ForSale() {
		return nil, s.reject("not_for_sale", book.CheckPurchase(purchase))
	}
	if req.Email != "" {
		if err := s.validate.VarCtx(ctx, req.Email, "email"); err != nil {
			return nil, s.reject("invalid_request", fmt.Errorf("%w: email %q is not valid", ErrInvalidRequest, req.Email))
		}
	}
	if err := book.CheckPurchase(purchase); err != nil {
		return nil, s.reject(rejectionReason(err), err)
	}

	info := book.Info()
	total := books.Total(book, req.Quantity)
	receipt := &Receipt{
		OrderID:   uuid.New().String(),
		ISBN:      info.ISBN,
		Title:     info.Title,
		Kind:      book.Kind(),
		Quantity:  req.Quantity,
		UnitPrice: info.Price,
		Total:     total,
		Currency:  record.Currency,
	}

	order := &db.Order{
		OrderID:   receipt.OrderID,
		Kind:      record.Kind,
		UnitPrice: record.Price,
		Total:     toCents(total),
		Currency:  record.Currency,
		Email:     req.Email,
		Address:   req.Address,
	}
	remaining, err := s.repo.Purchase(ctx, info.ISBN, req.Quantity, order)
	if err != nil {
		if errors.Is(err, repo.ErrInsufficientStock) {
			// Stock moved between the check and the update
			return nil, s.reject("insufficient_stock", fmt.Errorf("%w for ISBN %s", books.ErrInsufficientStock, info.ISBN))
		}
		return nil, err
	}
	receipt.Remaining = remaining

	kind := string(book.Kind())
	s.metrics.Purchases.WithLabelValues(kind).Inc()
	s.metrics.UnitsSold.WithLabelValues(kind).Add(float64(req.Quantity))
	s.metrics.RevenueCents.Add(float64(order.Total))

	s.log.Info("Book purchased",
		zap.String("order_id", receipt.OrderID),
		zap.String("sku", receipt.ISBN),
		zap.Int32("quantity", receipt.Quantity),
		zap.String("total", total.StringFixed(2)),
		zap.Int32("remaining", remaining),
	)

	receipt.NotifyErrors = s.notify(ctx, book, purchase, receipt)

	s.publishAsync("order purchased", receipt.ISBN, func(ctx context.Context, p EventPublisher) error {
		return p.PublishOrderPurchased(events.WithCorrelationID(ctx, receipt.OrderID), map[string]interface{}{
			"order_id":  receipt.OrderID,
			"sku":       receipt.ISBN,
			"kind":      kind,
			"quantity":  receipt.Quantity,
			"total":     order.Total,
			"currency":  receipt.Currency,
			"remaining": remaining,
		})
	})

	return receipt, nil
}

func (s *Store) notify(ctx context.Context, book books.Book, p books.Purchase, r *Receipt) []error {
	delivery := books.DeliveryFor(book, p)
	if !delivery.Email && !delivery.Ship {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	n := notify.Notice{
		OrderID:  r.OrderID,
		ISBN:     r.ISBN,
		Title:    r.Title,
		Kind:     string(r.Kind),
		Quantity: r.Quantity,
		Total:    r.Total,
		Email:    p.Email,
		Address:  p.Address,
	}

	var errs []error
	if delivery.Ship && s.shipper != nil {
		if err := s.shipper.ArrangeShipment(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("shipping: %w", err))
			s.metrics.NotificationFailures.WithLabelValues("shipping").Inc()
			s.log.Warn("Shipping notification failed", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}
	if delivery.Email && s.mailer != nil {
		if err := s.mailer.SendPurchaseConfirmation(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
			s.metrics.NotificationFailures.WithLabelValues("email").Inc()
			s.log.Warn("Email notification failed", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}
	return errs
}

// publishAsync emits an event without holding up the caller, as event
// delivery must not fail the operation that produced it.
func (s *Store) publishAsync(what, sku string, publish func(context.Context, EventPublisher) error) {
	if s.publisher == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := publish(ctx, s.publisher); err != nil {
			s.log.Error("Failed to publish "+what+" event",
				zap.String("sku", sku),
				zap.Error(err),
			)
		}
	}()
}

func (s *Store) reject(reason string, err error) error {
	s.metrics.PurchaseRejections.WithLabelValues(reason).Inc()
	s.log.Debug("Purchase rejected", zap.String("reason", reason), zap.Error(err))
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, books.ErrNotForSale):
		return "not_for_sale"
	case errors.Is(err, books.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, books.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, books.ErrEmailRequired):
		return "email_required"
	case errors.Is(err, books.ErrSingleCopyOnly):
		return "single_copy_only"
	}
	return "other"
}

// Get returns the book with the given ISBN.
func (s *Store) Get(ctx context.Context, isbn string) (books.Book, error) {
	record, err := s.repo.GetBook(ctx, strings.TrimSpace(isbn))
	if err != nil {
		return nil, err
	}
	return fromRecord(record), nil
}

// List returns every book in the order it was added.
func (s *Store) List(ctx context.Context) ([]books.Book, error) {
	records, err := s.repo.ListBooks(ctx, repo.ListFilter{})
	if err != nil {
		return nil, err
	}
	return fromRecords(records), nil
}

// Showcase returns the display-only books.
func (s *Store) Showcase(ctx context.Context) ([]*books.ShowcaseBook, error) {
	records, err := s.repo.ListBooks(ctx, repo.ListFilter{Kind: string(books.KindShowcase)})
	if err != nil {
		return nil, err
	}
	out := make([]*books.ShowcaseBook, 0, len(records))
	for _, r := range records {
		if b, ok := fromRecord(r).(*books.ShowcaseBook); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// Orders returns the purchase history, optionally for one ISBN.
func (s *Store) Orders(ctx context.Context, isbn string) ([]*db.Order, error) {
	return s.repo.ListOrders(ctx, strings.TrimSpace(isbn))
}

// Stats returns catalog totals.
func (s *Store) Stats(ctx context.Context) (repo.Stats, error) {
	return s.repo.GetStats(ctx)
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}
