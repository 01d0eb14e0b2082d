package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Purchases.WithLabelValues("paper").Inc()
	m.RevenueCents.Add(2000)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Purchases.WithLabelValues("paper")))
	assert.Equal(t, float64(2000), testutil.ToFloat64(m.RevenueCents))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bookstore_purchases_total{kind="paper"} 1`)
	assert.Contains(t, rec.Body.String(), "bookstore_revenue_cents_total 2000")
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration
	a, b := New(), New()
	a.BooksAdded.WithLabelValues("ebook").Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.BooksAdded.WithLabelValues("ebook")))
}
