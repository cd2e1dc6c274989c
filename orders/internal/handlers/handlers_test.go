package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
	"github.com/gagps/ecommerce-cx/orders/internal/repository"
)

type memRepo struct {
	mu       sync.Mutex
	orders   []*models.Order
	products map[string]models.ProductRef
}

func (m *memRepo) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *memRepo) Get(_ context.Context, email, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Email == email && o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) ListByEmail(_ context.Context, email string) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Order, 0)
	for _, o := range m.orders {
		if o.Email == email {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memRepo) ListAll(context.Context) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Order{}, m.orders...), nil
}

func (m *memRepo) Delete(_ context.Context, email, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.orders {
		if o.Email == email && o.ID == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memRepo) ProductsByIDs(_ context.Context, ids []string) ([]models.ProductRef, error) {
	var out []models.ProductRef
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type published struct {
	eventType string
	event     *models.OrderEvent
}

type recordingEvents struct {
	events []published
}

func (r *recordingEvents) Publish(_ context.Context, eventType string, ev *models.OrderEvent) error {
	r.events = append(r.events, published{eventType, ev})
	return nil
}

type stubRecords struct {
	email, prefix string
	records       []*eventrecord.Record
}

func (s *stubRecords) QueryByEmail(_ context.Context, email, prefix string) ([]*eventrecord.Record, error) {
	s.email, s.prefix = email, prefix
	return s.records, nil
}

type fixture struct {
	repo    *memRepo
	events  *recordingEvents
	records *stubRecords
	router  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		repo: &memRepo{products: map[string]models.ProductRef{
			"p1": {ID: "p1", Code: "PH1", Price: 10.5},
			"p2": {ID: "p2", Code: "PD2", Price: 4},
		}},
		events:  &recordingEvents{},
		records: &stubRecords{},
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	NewHandler(f.repo, f.events, f.records).Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func orderBody(t *testing.T, email string, ids ...string) string {
	t.Helper()
	data, err := json.Marshal(models.OrderRequest{
		Email:      email,
		ProductIDs: ids,
		Payment:    models.PaymentDebitCard,
		Shipping:   models.Shipping{Type: models.ShippingUrgent, Carrier: models.CarrierCorreios},
	})
	require.NoError(t, err)
	return string(data)
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture()
	email := gofakeit.Email()

	rec := f.do(http.MethodPost, "/orders", orderBody(t, email, "p1", "p2", "p1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 25.0, created.Billing.TotalPrice)
	assert.Equal(t, []string{"PH1", "PD2", "PH1"}, created.ProductCodes)

	rec = f.do(http.MethodGet, "/orders?email="+email+"&orderId="+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/orders?email="+email, "")
	var mine []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = f.do(http.MethodDelete, "/orders?email="+email+"&orderId="+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodDelete, "/orders?email="+email+"&orderId="+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/orders", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.Len(t, f.events.events, 2)
	assert.Equal(t, models.EventOrderCreated, f.events.events[0].eventType)
	assert.Equal(t, models.EventOrderDeleted, f.events.events[1].eventType)
	assert.Equal(t, created.ID, f.events.events[1].event.OrderID)
	assert.Equal(t, 25.0, f.events.events[0].event.BillingTotal)
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/orders", orderBody(t, "buyer@example.com", "p1", "ghost"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Some product was not found")

	rec = f.do(http.MethodPost, "/orders", orderBody(t, "not-an-email", "p1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/orders", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.repo.orders)
	assert.Empty(t, f.events.events)
}

func TestQueryParams(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/orders?orderId=o1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/orders?email=a@example.com", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders?email=a@example.com&orderId=o1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/orders/events", "").Code)
}

func TestListEvents(t *testing.T) {
	f := newFixture()
	r := eventrecord.NewRecord("#order_o-1", models.EventOrderCreated, 0)
	r.Email = "buyer@example.com"
	r.RequestID = "req-1"
	r.Info = map[string]any{"orderId": "o-1", "productCodes": []any{"PH1"}}
	f.records.records = []*eventrecord.Record{r}

	rec := f.do(http.MethodGet, "/orders/events?email=buyer@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORDER_", f.records.prefix)

	var views []models.EventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "o-1", views[0].OrderID)
	assert.Equal(t, []string{"PH1"}, views[0].ProductCodes)
	assert.Equal(t, models.EventOrderCreated, views[0].EventType)

	f.do(http.MethodGet, "/orders/events?email=buyer@example.com&eventType=ORDER_DELETED", "")
	assert.Equal(t, "ORDER_DELETED", f.records.prefix)
	assert.Equal(t, "buyer@example.com", f.records.email)
}
