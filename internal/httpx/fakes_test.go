package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dnjuguna/mkulima-market/internal/auth"
	"github.com/dnjuguna/mkulima-market/internal/market"
)

// memEngine is an in-memory stand-in for the postgres-backed stores with the
// same observable semantics: merge-on-add carts, reservation on order
// creation, idempotent payment resolution.
type memEngine struct {
	mu           sync.Mutex
	products     map[int64]*market.Product
	lines        map[int64]*market.CartLine
	orders       map[int64]*market.Order
	items        map[int64][]market.OrderItem
	reservations map[int64][]*market.Reservation
	attempts     map[string]*market.PaymentAttempt
	nextID       int64
}

func newEngine() *memEngine {
	return &memEngine{
		products:     map[int64]*market.Product{},
		lines:        map[int64]*market.CartLine{},
		orders:       map[int64]*market.Order{},
		items:        map[int64][]market.OrderItem{},
		reservations: map[int64][]*market.Reservation{},
		attempts:     map[string]*market.PaymentAttempt{},
	}
}

func (e *memEngine) id() int64 {
	e.nextID++
	return e.nextID
}

func (e *memEngine) addProduct(name string, farmerID int64, price string, stock int, active bool) market.Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := market.Product{
		ID:       e.id(),
		FarmerID: farmerID,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Unit:     "kg",
		Stock:    stock,
		IsActive: active,
	}
	e.products[p.ID] = &p
	return p
}

func (e *memEngine) stockOf(productID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.products[productID].Stock
}

// expirePayment parks an order the way the payment sweep does: stock back,
// open attempt closed, status PAYMENT_FAILED.
func (e *memEngine) expirePayment(orderID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, res := range e.reservations[orderID] {
		if res.Status == market.ReservationReserved {
			e.products[res.ProductID].Stock += res.Qty
			res.Status = market.ReservationReleased
		}
	}
	for _, a := range e.attempts {
		if a.OrderID == orderID && a.Status == market.AttemptInitiated {
			a.Status = market.AttemptFailed
		}
	}
	o := e.orders[orderID]
	o.Status = market.StatusPaymentFailed
	o.PaymentStatus = market.PaymentFailedStatus
}

func (e *memEngine) orderStatus(orderID int64) market.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders[orderID].Status
}

// view denormalizes the product fields onto the line, the way the SQL
// snapshot join does.
func (e *memEngine) view(l market.CartLine) market.CartLine {
	p := e.products[l.ProductID]
	l.ProductName = p.Name
	l.FarmerID = p.FarmerID
	l.UnitPrice = p.Price
	l.Unit = p.Unit
	l.Stock = p.Stock
	l.IsActive = p.IsActive
	return l
}

func (e *memEngine) snapshotLocked(userID string) []market.CartLine {
	var out []market.CartLine
	for _, l := range e.lines {
		if l.UserID == userID {
			out = append(out, e.view(*l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CartStore

func (e *memEngine) Add(_ context.Context, userID string, productID int64, qty int) (market.CartLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if qty < 1 {
		return market.CartLine{}, fmt.Errorf("%w: quantity must be at least 1", market.ErrInvalidArgument)
	}
	p, ok := e.products[productID]
	if !ok {
		return market.CartLine{}, market.ErrNotFound
	}
	if !p.IsActive {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: p.ID, ProductName: p.Name}
	}
	var existing *market.CartLine
	for _, l := range e.lines {
		if l.UserID == userID && l.ProductID == productID {
			existing = l
			break
		}
	}
	have := 0
	if existing != nil {
		have = existing.Qty
	}
	if have+qty > p.Stock {
		return market.CartLine{}, &market.StockShortageError{
			ProductID: p.ID, ProductName: p.Name, Requested: have + qty, Available: p.Stock,
		}
	}
	if existing != nil {
		existing.Qty += qty
		return e.view(*existing), nil
	}
	l := market.CartLine{ID: e.id(), UserID: userID, ProductID: productID, Qty: qty}
	e.lines[l.ID] = &l
	return e.view(l), nil
}

func (e *memEngine) SetQuantity(_ context.Context, userID string, lineID int64, qty int) (market.CartLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if qty < 1 {
		return market.CartLine{}, fmt.Errorf("%w: quantity must be at least 1", market.ErrInvalidArgument)
	}
	l, ok := e.lines[lineID]
	if !ok || l.UserID != userID {
		return market.CartLine{}, market.ErrNotFound
	}
	l.Qty = qty
	return e.view(*l), nil
}

func (e *memEngine) Remove(_ context.Context, userID string, lineID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lines[lineID]
	if !ok || l.UserID != userID {
		return market.ErrNotFound
	}
	delete(e.lines, lineID)
	return nil
}

func (e *memEngine) Clear(_ context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, l := range e.lines {
		if l.UserID == userID {
			delete(e.lines, id)
		}
	}
	return nil
}

func (e *memEngine) Snapshot(_ context.Context, userID string) ([]market.CartLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(userID), nil
}

// OrderStore

func (e *memEngine) CreateFromCart(_ context.Context, userID string, info market.DeliveryInfo) (market.Order, []market.OrderItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.snapshotLocked(userID)
	if len(lines) == 0 {
		return market.Order{}, nil, market.ErrEmptyCart
	}

	type taken struct {
		p   *market.Product
		qty int
	}
	var done []taken
	undo := func() {
		for _, d := range done {
			d.p.Stock += d.qty
		}
	}
	for _, l := range lines {
		p := e.products[l.ProductID]
		if p == nil || !p.IsActive {
			undo()
			return market.Order{}, nil, &market.ProductUnavailableError{ProductID: l.ProductID, ProductName: l.ProductName}
		}
		if p.Stock < l.Qty {
			undo()
			return market.Order{}, nil, &market.StockShortageError{
				ProductID: p.ID, ProductName: p.Name, Requested: l.Qty, Available: p.Stock,
			}
		}
		p.Stock -= l.Qty
		done = append(done, taken{p, l.Qty})
	}

	q := market.Quote(lines)
	o := market.Order{
		ID:                   e.id(),
		UserID:               userID,
		TotalAmount:          q.Total,
		Status:               market.StatusCreated,
		PaymentStatus:        market.PaymentPendingStatus,
		PaymentMethod:        info.Method,
		DeliveryAddress:      info.Address,
		DeliveryPhone:        info.Phone,
		DeliveryInstructions: info.Instructions,
	}
	e.orders[o.ID] = &o

	var items []market.OrderItem
	for _, l := range lines {
		items = append(items, market.OrderItem{
			ID:         e.id(),
			OrderID:    o.ID,
			ProductID:  l.ProductID,
			FarmerID:   l.FarmerID,
			Qty:        l.Qty,
			UnitPrice:  l.UnitPrice,
			TotalPrice: l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))),
		})
		e.reservations[o.ID] = append(e.reservations[o.ID], &market.Reservation{
			ID: e.id(), OrderID: o.ID, ProductID: l.ProductID, Qty: l.Qty, Status: market.ReservationReserved,
		})
	}
	e.items[o.ID] = items

	for id, l := range e.lines {
		if l.UserID == userID {
			delete(e.lines, id)
		}
	}
	return o, items, nil
}

func (e *memEngine) Order(_ context.Context, id int64) (market.Order, []market.OrderItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return market.Order{}, nil, market.ErrNotFound
	}
	return *o, e.items[id], nil
}

func (e *memEngine) ListByUser(_ context.Context, userID string) ([]market.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []market.Order
	for _, o := range e.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *memEngine) ListByFarmer(_ context.Context, farmerID int64) ([]market.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []market.Order
	for id, o := range e.orders {
		if e.hasFarmerItemsLocked(id, farmerID) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *memEngine) HasFarmerItems(_ context.Context, orderID, farmerID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasFarmerItemsLocked(orderID, farmerID), nil
}

func (e *memEngine) hasFarmerItemsLocked(orderID, farmerID int64) bool {
	for _, it := range e.items[orderID] {
		if it.FarmerID == farmerID {
			return true
		}
	}
	return false
}

func (e *memEngine) Advance(_ context.Context, id int64, to market.Status) (market.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	if !market.IsFulfillment(o.Status, to) {
		return market.Order{}, &market.InvalidTransitionError{OrderID: id, From: o.Status, To: to}
	}
	o.Status = to
	return *o, nil
}

func (e *memEngine) Cancel(_ context.Context, id int64, userID string, admin bool) (market.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	if !admin && o.UserID != userID {
		return market.Order{}, market.ErrNotFound
	}
	if o.Status != market.StatusCreated && o.Status != market.StatusPaymentFailed {
		return market.Order{}, &market.InvalidTransitionError{OrderID: id, From: o.Status, To: market.StatusCancelled}
	}
	for _, res := range e.reservations[id] {
		if res.Status == market.ReservationReserved {
			e.products[res.ProductID].Stock += res.Qty
			res.Status = market.ReservationReleased
		}
	}
	o.Status = market.StatusCancelled
	return *o, nil
}

// PaymentStore

func (e *memEngine) Initiate(_ context.Context, orderID int64, userID, phone, method string) (market.PaymentAttempt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return market.PaymentAttempt{}, market.ErrNotFound
	}
	if o.UserID != userID {
		return market.PaymentAttempt{}, market.ErrForbidden
	}
	if o.Status == market.StatusPaymentPending {
		for _, a := range e.attempts {
			if a.OrderID == orderID && a.Status == market.AttemptInitiated {
				a.Phone = phone
				return *a, nil
			}
		}
		return market.PaymentAttempt{}, &market.InvalidStateError{OrderID: orderID, State: o.Status, Op: "initiate payment"}
	}
	if o.Status != market.StatusCreated {
		return market.PaymentAttempt{}, &market.InvalidStateError{OrderID: orderID, State: o.Status, Op: "initiate payment"}
	}
	a := market.PaymentAttempt{
		ID:        e.id(),
		OrderID:   orderID,
		Reference: fmt.Sprintf("MP%d", e.id()),
		Amount:    o.TotalAmount,
		Phone:     phone,
		Status:    market.AttemptInitiated,
	}
	e.attempts[a.Reference] = &a
	o.Status = market.StatusPaymentPending
	o.PaymentMethod = method
	o.PaymentReference = a.Reference
	return a, nil
}

func (e *memEngine) Resolve(_ context.Context, reference string, outcome market.PaymentOutcome) (market.PaymentResolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.attempts[reference]
	if !ok {
		return market.PaymentResolution{}, market.ErrNotFound
	}
	o := e.orders[a.OrderID]
	if a.Status.Terminal() {
		return market.PaymentResolution{Order: *o, Attempt: *a, AlreadyResolved: true}, nil
	}
	if o.Status != market.StatusPaymentPending {
		a.Status = market.AttemptFailed
		return market.PaymentResolution{Order: *o, Attempt: *a}, nil
	}
	if outcome.Success {
		a.Status = market.AttemptSucceeded
		for _, res := range e.reservations[o.ID] {
			if res.Status == market.ReservationReserved {
				res.Status = market.ReservationCommitted
			}
		}
		o.Status = market.StatusConfirmed
		o.PaymentStatus = market.PaymentPaid
	} else {
		a.Status = market.AttemptFailed
		for _, res := range e.reservations[o.ID] {
			if res.Status == market.ReservationReserved {
				e.products[res.ProductID].Stock += res.Qty
				res.Status = market.ReservationReleased
			}
		}
		o.Status = market.StatusCancelled
		o.PaymentStatus = market.PaymentFailedStatus
	}
	return market.PaymentResolution{Order: *o, Attempt: *a}, nil
}

// collaborator fakes

type fakeFarmers struct{ byUser map[string]market.Farmer }

func (f *fakeFarmers) ByUserID(_ context.Context, userID string) (market.Farmer, error) {
	fr, ok := f.byUser[userID]
	if !ok {
		return market.Farmer{}, market.ErrNotFound
	}
	return fr, nil
}

type publishedEvent struct {
	Topic    string
	Key      string
	Envelope market.Envelope
}

type fakeProducer struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakeProducer) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	var env market.Envelope
	_ = json.Unmarshal(value, &env)
	p.mu.Lock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: string(key), Envelope: env})
	p.mu.Unlock()
}

func (p *fakeProducer) byTopic(topic string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, ev := range p.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

type fakeGateway struct {
	pushes []string
	err    error
}

func (g *fakeGateway) Push(_ context.Context, reference, _ string, _ decimal.Decimal) error {
	if g.err != nil {
		return g.err
	}
	g.pushes = append(g.pushes, reference)
	return nil
}

type fakeDedup struct{ seen map[string]bool }

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: map[string]bool{}} }

func (d *fakeDedup) Seen(_ context.Context, reference string) bool { return d.seen[reference] }
func (d *fakeDedup) Mark(_ context.Context, reference string)      { d.seen[reference] = true }

// request helpers

func doJSON(t *testing.T, h http.Handler, method, path string, ident *auth.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if ident != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *ident))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func consumer(userID string) *auth.Identity {
	return &auth.Identity{UserID: userID, Role: market.RoleConsumer}
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }
