// Package httpserver exposes the read-only operations surface: health,
// Prometheus metrics and a JSON view of the catalog.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bookstore/quantumstore/internal/books"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/bookstore/quantumstore/internal/repo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Catalog is the read side of the store.
type Catalog interface {
	List(ctx context.Context) ([]books.Book, error)
	Get(ctx context.Context, isbn string) (books.Book, error)
	Orders(ctx context.Context, isbn string) ([]*db.Order, error)
	Stats(ctx context.Context) (repo.Stats, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping() error
}

// BrokerHealth reports whether the message broker connection is up.
type BrokerHealth interface {
	IsHealthy() bool
}

// Deps are the collaborators the router serves from. Broker may be nil when
// event publishing is disabled.
type Deps struct {
	Catalog Catalog
	DB      Pinger
	Broker  BrokerHealth
	Metrics http.Handler
	Log     *zap.Logger
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(d Deps) *chi.Mux {
	h := &handler{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	r.Get("/healthz", h.health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/books", h.listBooks)
		r.Get("/books/{isbn}", h.getBook)
		r.Get("/books/{isbn}/orders", h.listOrders)
		r.Get("/orders", h.listOrders)
		r.Get("/stats", h.stats)
	})
	return r
}

// New wraps the router in an http.Server listening on addr.
func New(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(d),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.Ping(); err != nil {
		h.deps.Log.Error("Database health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy: database connection failed"))
		return
	}

	if h.deps.Broker != nil && !h.deps.Broker.IsHealthy() {
		h.deps.Log.Error("RabbitMQ health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy: rabbitmq connection failed"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

func (h *handler) listBooks(w http.ResponseWriter, r *http.Request) {
	all, err := h.deps.Catalog.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	kind := r.URL.Query().Get("kind")
	forSale := r.URL.Query().Get("for_sale") == "true"

	out := make([]bookView, 0, len(all))
	for _, b := range all {
		if kind != "" && string(b.Kind()) != kind {
			continue
		}
		if forSale && !b.ForSale() {
			continue
		}
		out = append(out, toView(b))
	}
	respond(w, http.StatusOK, out)
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Catalog.Get(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, toView(b))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Catalog.Orders(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]orderView, len(orders))
	for i, o := range orders {
		out[i] = toOrderView(o)
	}
	respond(w, http.StatusOK, out)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Catalog.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, statsView{
		Total:    s.Total,
		ForSale:  s.ForSale,
		Showcase: s.Showcase,
		Units:    s.Units,
	})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrBookNotFound) {
		respond(w, http.StatusNotFound, errorView{Error: err.Error()})
		return
	}
	h.deps.Log.Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	respond(w, http.StatusInternalServerError, errorView{Error: "internal error"})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Debug("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
