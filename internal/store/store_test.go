package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/bookstore/quantumstore/internal/metrics"
	"github.com/bookstore/quantumstore/internal/notify"
	"github.com/bookstore/quantumstore/internal/repo"
	"github.com/bookstore/quantumstore/pkg/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeCollaborator records notices and can be told to fail.
type fakeCollaborator struct {
	mu      sync.Mutex
	mails   []notify.Notice
	ships   []notify.Notice
	mailErr error
	shipErr error
}

func (f *fakeCollaborator) SendPurchaseConfirmation(ctx context.Context, n notify.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mails = append(f.mails, n)
	return f.mailErr
}

func (f *fakeCollaborator) ArrangeShipment(ctx context.Context, n notify.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ships = append(f.ships, n)
	return f.shipErr
}

// MockPublisher is a mock event publisher for testing
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []string
}

func (m *MockPublisher) PublishBookCreated(ctx context.Context, payload map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, fmt.Sprintf("created:%v", payload["sku"]))
	return nil
}

func (m *MockPublisher) PublishOrderPurchased(ctx context.Context, payload map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, fmt.Sprintf("purchased:%v:%v", payload["sku"], payload["quantity"]))
	return nil
}

type testEnv struct {
	store   *Store
	collab  *fakeCollaborator
	pub     *MockPublisher
	metrics *metrics.Metrics
}

func setupTestStore(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error", "json")
	collab := &fakeCollaborator{}
	pub := &MockPublisher{}
	m := metrics.New()

	s := New(repo.NewCatalogRepository(database, log), collab, collab, pub, m, log, Settings{})
	return &testEnv{store: s, collab: collab, pub: pub, metrics: m}
}

func addPaper(t *testing.T, s *Store, isbn, price string, stock int32) {
	_, err := s.AddBook(context.Background(), AddRequest{
		Kind:   books.KindPaper,
		ISBN:   isbn,
		Title:  "Paper " + isbn,
		Author: "Author",
		Year:   1999,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, s *Store, isbn string) int32 {
	b, err := s.Get(context.Background(), isbn)
	require.NoError(t, err)
	return b.Info().Stock
}

func TestBuyPaperBookExample(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	addPaper(t, env.store, "PB-1", "10.00", 5)

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "PB-1", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "20.00", receipt.Total.StringFixed(2))
	assert.Equal(t, int32(3), receipt.Remaining)
	assert.Equal(t, int32(3), stockOf(t, env.store, "PB-1"))

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "PB-1", Quantity: 10})
	assert.ErrorIs(t, err, books.ErrInsufficientStock)
	assert.Equal(t, int32(3), stockOf(t, env.store, "PB-1"))
}

func TestBuyValidQuantitiesDecrementExactly(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	for qty := int32(1); qty <= 7; qty++ {
		isbn := fmt.Sprintf("PB-Q%d", qty)
		addPaper(t, env.store, isbn, "3.35", 7)

		receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: isbn, Quantity: qty})
		require.NoError(t, err, "quantity %d", qty)

		want := decimal.RequireFromString("3.35").Mul(decimal.NewFromInt32(qty))
		assert.True(t, want.Equal(receipt.Total), "quantity %d: total %s", qty, receipt.Total)
		assert.Equal(t, 7-qty, stockOf(t, env.store, isbn))
	}
}

func TestBuyOverStockNeverChangesStock(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	addPaper(t, env.store, "PB-2", "5.00", 4)

	for _, qty := range []int32{5, 6, 100} {
		_, err := env.store.Buy(ctx, BuyRequest{ISBN: "PB-2", Quantity: qty})
		assert.ErrorIs(t, err, books.ErrInsufficientStock)
		assert.Equal(t, int32(4), stockOf(t, env.store, "PB-2"))
	}

	orders, err := env.store.Orders(ctx, "PB-2")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, float64(3), testutil.ToFloat64(env.metrics.PurchaseRejections.WithLabelValues("insufficient_stock")))
}

func TestBuyShowcaseAlwaysFails(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	_, err := env.store.AddBook(ctx, AddRequest{
		Kind:   books.KindShowcase,
		ISBN:   "SC-1",
		Title:  "First Folio",
		Author: "William Shakespeare",
		Year:   1623,
		Price:  decimal.RequireFromString("999"),
		Stock:  3,
	})
	require.NoError(t, err)

	for _, qty := range []int32{-3, 0, 1, 2, 50} {
		_, err := env.store.Buy(ctx, BuyRequest{ISBN: "SC-1", Quantity: qty, Email: "a@b.co", Address: "Here"})
		assert.ErrorIs(t, err, books.ErrNotForSale, "quantity %d", qty)
	}

	b, err := env.store.Get(ctx, "SC-1")
	require.NoError(t, err)
	assert.False(t, b.ForSale())
	assert.True(t, b.Info().Price.IsZero())
	assert.Equal(t, int32(0), b.Info().Stock)

	assert.Empty(t, env.collab.mails)
	assert.Empty(t, env.collab.ships)
}

func TestBuyUnknownAndInvalid(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	addPaper(t, env.store, "PB-3", "1.00", 1)

	_, err := env.store.Buy(ctx, BuyRequest{ISBN: "missing", Quantity: 1})
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "  ", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "PB-3", Quantity: 0})
	assert.ErrorIs(t, err, books.ErrInvalidQuantity)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "PB-3", Quantity: 1, Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, int32(1), stockOf(t, env.store, "PB-3"))
}

func TestBuyPaperNotifiesCollaborators(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	addPaper(t, env.store, "PB-4", "12.50", 2)

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "PB-4", Quantity: 2, Email: "reader@example.com", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Empty(t, receipt.NotifyErrors)

	require.Len(t, env.collab.ships, 1)
	require.Len(t, env.collab.mails, 1)
	assert.Equal(t, receipt.OrderID, env.collab.ships[0].OrderID)
	assert.Equal(t, "1 Main St", env.collab.ships[0].Address)
	assert.Equal(t, "25.00", env.collab.mails[0].Total.StringFixed(2))

	orders, err := env.store.Orders(ctx, "PB-4")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(2500), orders[0].Total)
	assert.Equal(t, int64(1250), orders[0].UnitPrice)
}

func TestNotificationFailureKeepsSale(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()
	env.collab.shipErr = errors.New("courier offline")
	addPaper(t, env.store, "PB-5", "8.00", 3)

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "PB-5", Quantity: 1, Address: "2 Side St"})
	require.NoError(t, err)
	require.Len(t, receipt.NotifyErrors, 1)
	assert.ErrorContains(t, receipt.NotifyErrors[0], "courier offline")

	assert.Equal(t, int32(2), stockOf(t, env.store, "PB-5"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.NotificationFailures.WithLabelValues("shipping")))
}

func TestBuyEBook(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	_, err := env.store.AddBook(ctx, AddRequest{
		Kind:       books.KindEBook,
		ISBN:       "EB-1",
		Title:      "The Go Programming Language",
		Author:     "Donovan & Kernighan",
		Year:       2015,
		Price:      decimal.RequireFromString("30"),
		Stock:      10,
		FileType:   "epub",
		FileSizeKB: 4096,
	})
	require.NoError(t, err)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "EB-1", Quantity: 1})
	assert.ErrorIs(t, err, books.ErrEmailRequired)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "EB-1", Quantity: 2, Email: "r@example.com"})
	assert.ErrorIs(t, err, books.ErrSingleCopyOnly)

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "EB-1", Quantity: 1, Email: "r@example.com", Address: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "30.00", receipt.Total.StringFixed(2))
	assert.Equal(t, int32(9), receipt.Remaining)
	assert.Len(t, env.collab.mails, 1)
	assert.Empty(t, env.collab.ships)

	b, err := env.store.Get(ctx, "EB-1")
	require.NoError(t, err)
	ebook, ok := b.(*books.EBook)
	require.True(t, ok)
	assert.Equal(t, "epub", ebook.FileType)
	assert.Equal(t, int64(4096), ebook.FileSizeKB)
}

func TestBuyAudioBook(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	_, err := env.store.AddBook(ctx, AddRequest{
		Kind:            books.KindAudio,
		ISBN:            "AB-1",
		Title:           "Project Hail Mary",
		Author:          "Andy Weir",
		Year:            2021,
		Price:           decimal.RequireFromString("19.99"),
		Stock:           3,
		Format:          "mp3",
		Narrator:        "Ray Porter",
		DurationMinutes: 970,
	})
	require.NoError(t, err)

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "AB-1", Quantity: 3, Email: "r@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "59.97", receipt.Total.StringFixed(2))
	assert.Equal(t, int32(0), receipt.Remaining)

	_, err = env.store.Buy(ctx, BuyRequest{ISBN: "AB-1", Quantity: 1, Email: "r@example.com"})
	assert.ErrorIs(t, err, books.ErrInsufficientStock)
}

func TestAddBookValidation(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	_, err := env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, Author: "A", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorContains(t, err, "title is required")

	_, err = env.store.AddBook(ctx, AddRequest{Kind: "scroll", Title: "T", Author: "A", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, Title: "T", Author: "A", Stock: -1, Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, Title: "T", Author: "A"})
	assert.ErrorIs(t, err, books.ErrInvalidPrice)

	addPaper(t, env.store, "DUP-1", "1.00", 1)
	_, err = env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, ISBN: "DUP-1", Title: "T", Author: "A", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrBookAlreadyExists)
}

func TestAddBookPriceBounds(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	for _, price := range []string{"0.001", "0.004", "100000000000000000000", "42949672.99"} {
		_, err := env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, Title: "T", Author: "A", Price: decimal.RequireFromString(price), Stock: 1})
		assert.ErrorIs(t, err, ErrInvalidRequest, price)
		assert.ErrorIs(t, err, books.ErrInvalidPrice, price)
	}

	all, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Largest price and largest quantity still fit an order total
	b, err := env.store.AddBook(ctx, AddRequest{Kind: books.KindPaper, ISBN: "MAX-1", Title: "T", Author: "A", Price: decimal.RequireFromString("42949672.98"), Stock: math.MaxInt32})
	require.NoError(t, err)
	assert.Equal(t, "42949672.98", b.Info().Price.StringFixed(2))

	receipt, err := env.store.Buy(ctx, BuyRequest{ISBN: "MAX-1", Quantity: math.MaxInt32})
	require.NoError(t, err)
	assert.True(t, receipt.Total.Equal(decimal.RequireFromString("42949672.98").Mul(decimal.NewFromInt(math.MaxInt32))))
	assert.Equal(t, int32(0), receipt.Remaining)

	orders, err := env.store.Orders(ctx, "MAX-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Positive(t, orders[0].Total)
}

func TestPriceCents(t *testing.T) {
	c, err := priceCents(decimal.RequireFromString("0.005"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c)

	c, err = priceCents(decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c)

	_, err = priceCents(decimal.RequireFromString("-3"))
	assert.ErrorIs(t, err, books.ErrInvalidPrice)
}

func TestAddBookGeneratesISBN(t *testing.T) {
	env := setupTestStore(t)

	b, err := env.store.AddBook(context.Background(), AddRequest{Kind: books.KindPaper, Title: "T", Author: "A", Price: decimal.NewFromInt(4), Stock: 1})
	require.NoError(t, err)
	assert.Equal(t, "BOOK-001", b.Info().ISBN)
}

func TestListAndShowcase(t *testing.T) {
	env := setupTestStore(t)
	ctx := context.Background()

	addPaper(t, env.store, "L-1", "1.00", 1)
	_, err := env.store.AddBook(ctx, AddRequest{Kind: books.KindShowcase, ISBN: "L-2", Title: "Codex", Author: "Leonardo", Year: 1510})
	require.NoError(t, err)

	all, err := env.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, books.KindPaper, all[0].Kind())
	assert.Equal(t, books.KindShowcase, all[1].Kind())

	showcase, err := env.store.Showcase(ctx)
	require.NoError(t, err)
	require.Len(t, showcase, 1)
	assert.Equal(t, "Codex", showcase[0].Title)

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Showcase)
}

func TestEventsPublished(t *testing.T) {
	env := setupTestStore(t)
	addPaper(t, env.store, "EV-1", "2.00", 2)

	_, err := env.store.Buy(context.Background(), BuyRequest{ISBN: "EV-1", Quantity: 2})
	require.NoError(t, err)

	env.store.Close()
	assert.ElementsMatch(t, []string{"created:EV-1", "purchased:EV-1:2"}, env.pub.PublishedEvents)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BooksAdded.WithLabelValues("paper")))
	assert.Equal(t, float64(400), testutil.ToFloat64(env.metrics.RevenueCents))
}
