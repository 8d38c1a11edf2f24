package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/kart-checkout/internal/domain/discount"
	"github.com/xenking/kart-checkout/internal/domain/item"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/tax"
	"github.com/xenking/kart-checkout/internal/payment"
)

// --- Mock processor ---

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) RetrieveCoupon(ctx context.Context, creds payment.Credentials, id string) error {
	return m.Called(ctx, creds, id).Error(0)
}

func (m *mockProcessor) CreateCoupon(ctx context.Context, creds payment.Credentials, p payment.CouponParams) (string, error) {
	args := m.Called(ctx, creds, p)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) RetrieveTaxRate(ctx context.Context, creds payment.Credentials, id string) error {
	return m.Called(ctx, creds, id).Error(0)
}

func (m *mockProcessor) CreateTaxRate(ctx context.Context, creds payment.Credentials, p payment.TaxRateParams) (string, error) {
	args := m.Called(ctx, creds, p)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, creds payment.Credentials, p payment.SessionParams) (*payment.Session, error) {
	args := m.Called(ctx, creds, p)
	s, _ := args.Get(0).(*payment.Session)
	return s, args.Error(1)
}

func (m *mockProcessor) CreatePaymentIntent(ctx context.Context, creds payment.Credentials, p payment.IntentParams) (*payment.Intent, error) {
	args := m.Called(ctx, creds, p)
	pi, _ := args.Get(0).(*payment.Intent)
	return pi, args.Error(1)
}

// --- In-memory repositories ---

type memDiscounts struct {
	mu   sync.Mutex
	rows map[int64]discount.Discount
	// beforeSwap runs inside SetRemoteCoupon to simulate a concurrent writer.
	beforeSwap func(row *discount.Discount)
	swaps      int
}

func newMemDiscounts(ds ...discount.Discount) *memDiscounts {
	m := &memDiscounts{rows: make(map[int64]discount.Discount)}
	for _, d := range ds {
		m.rows[d.ID] = d
	}
	return m
}

func (m *memDiscounts) GetByID(_ context.Context, id int64) (*discount.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return &d, nil
}

func (m *memDiscounts) Create(_ context.Context, d *discount.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[d.ID] = *d
	return nil
}

func (m *memDiscounts) SetRemoteCoupon(_ context.Context, id int64, prevID, newID string, currency money.Currency) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, discount.ErrNotFound
	}
	if m.beforeSwap != nil {
		m.beforeSwap(&row)
		m.rows[id] = row
	}
	if row.RemoteCouponID != prevID {
		return false, nil
	}
	row.RemoteCouponID = newID
	row.Currency = currency
	m.rows[id] = row
	m.swaps++
	return true, nil
}

type memTaxes struct {
	mu    sync.Mutex
	rows  map[int64]tax.Tax
	swaps int
}

func newMemTaxes(ts ...tax.Tax) *memTaxes {
	m := &memTaxes{rows: make(map[int64]tax.Tax)}
	for _, t := range ts {
		m.rows[t.ID] = t
	}
	return m
}

func (m *memTaxes) GetByID(_ context.Context, id int64) (*tax.Tax, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, tax.ErrNotFound
	}
	return &t, nil
}

func (m *memTaxes) Create(_ context.Context, t *tax.Tax) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.ID] = *t
	return nil
}

func (m *memTaxes) SetRemoteTaxRate(_ context.Context, id int64, prevID, newID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, tax.ErrNotFound
	}
	if row.RemoteTaxRateID != prevID {
		return false, nil
	}
	row.RemoteTaxRateID = newID
	m.rows[id] = row
	m.swaps++
	return true, nil
}

type memItems struct {
	rows map[int64]item.Item
}

func (m *memItems) GetByID(_ context.Context, id int64) (*item.Item, error) {
	it, ok := m.rows[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	return &it, nil
}

func (m *memItems) Create(_ context.Context, it *item.Item) error {
	m.rows[it.ID] = *it
	return nil
}

type memOrders struct {
	rows map[int64]*order.Order
}

func (m *memOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.rows[o.ID] = o
	return nil
}

func (m *memOrders) SetItem(_ context.Context, _, _ int64, _ int) error {
	return nil
}

// --- Helpers ---

var testKeys = payment.Keyring{
	USD: payment.Credentials{SecretKey: "sk_usd", PublishableKey: "pk_usd"},
	EUR: payment.Credentials{SecretKey: "sk_eur", PublishableKey: "pk_eur"},
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func testMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return m
}

func newTestItem(id int64, name, price string, cur money.Currency) item.Item {
	return item.Item{
		ID:          id,
		Name:        name,
		Description: name + " description",
		Price:       d(price),
		Currency:    cur,
	}
}
