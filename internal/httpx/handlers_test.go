package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/auth"
	"github.com/woolstore/storefront/internal/cart"
	"github.com/woolstore/storefront/internal/catalog"
	"github.com/woolstore/storefront/internal/httpx"
	"github.com/woolstore/storefront/internal/orders"
	"github.com/woolstore/storefront/internal/session"
)

type fakeUsers struct {
	admins    map[string]auth.User
	customers map[string]auth.User
}

func (f *fakeUsers) FindAdminByEmail(_ context.Context, email string) (auth.User, bool, error) {
	u, ok := f.admins[email]
	return u, ok, nil
}

func (f *fakeUsers) FindCustomerByEmail(_ context.Context, email string) (auth.User, bool, error) {
	u, ok := f.customers[email]
	return u, ok, nil
}

func (f *fakeUsers) EmailTaken(_ context.Context, email string) (bool, error) {
	_, a := f.admins[email]
	_, c := f.customers[email]
	return a || c, nil
}

func (f *fakeUsers) CreateCustomer(_ context.Context, name, email, passwordHash string) (auth.User, error) {
	u := auth.User{ID: "cust-" + name, Name: name, Email: email, Role: auth.RoleCustomer, PasswordHash: passwordHash}
	f.customers[email] = u
	return u, nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, apperr.New(apperr.KindNotFound, "product not found: %s", id)
	}
	return p, nil
}

// fakeOrders scripts Create outcomes so the handler's retry loop can be
// observed; everything else is a thin in-memory map.
type fakeOrders struct {
	mu            sync.Mutex
	orders        map[string]orders.Order
	createErr     []error // consumed one per Create call
	creates       int
	blockOnCreate bool          // Create waits for ctx cancellation, then fails transiently
	createEntered chan struct{} // buffered; signalled on each Create call
}

func (f *fakeOrders) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeOrders) Create(ctx context.Context, orderID, customerID string, lines []orders.LineInput) (orders.Order, error) {
	f.mu.Lock()
	f.creates++
	block := f.blockOnCreate
	var err error
	if len(f.createErr) > 0 {
		err = f.createErr[0]
		f.createErr = f.createErr[1:]
	}
	if f.createEntered != nil {
		select {
		case f.createEntered <- struct{}{}:
		default:
		}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return orders.Order{}, apperr.Wrap(apperr.KindTransient, ctx.Err(), "create interrupted")
	}
	if err != nil {
		return orders.Order{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := orders.Order{ID: orderID, CustomerID: customerID, Status: orders.StatusPending}
	for _, ln := range lines {
		o.Lines = append(o.Lines, orders.Line{ProductID: ln.ProductID, Qty: ln.Qty, UnitPriceCents: 1000})
		o.TotalCents += 1000 * ln.Qty
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrders) Cancel(_ context.Context, orderID string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	if o.Status != orders.StatusPending {
		return orders.Order{}, apperr.New(apperr.KindInvalidState, "order %s is %s", orderID, o.Status)
	}
	o.Status = orders.StatusCancelled
	f.orders[orderID] = o
	return o, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, orderID string, to orders.Status) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	if !orders.CanTransition(o.Status, to) {
		return orders.Order{}, apperr.New(apperr.KindInvalidTransition, "cannot move %s to %s", o.Status, to)
	}
	o.Status = to
	f.orders[orderID] = o
	return o, nil
}

func (f *fakeOrders) Get(_ context.Context, orderID string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return o, nil
}

func (f *fakeOrders) List(_ context.Context) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) ListByCustomer(_ context.Context, customerID string) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []orders.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

type env struct {
	srv    *httptest.Server
	orders *fakeOrders
}

func newEnv(t *testing.T) *env {
	t.Helper()

	hashOf := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}
	users := &fakeUsers{
		admins: map[string]auth.User{
			"catherine@woolstore.com": {ID: "adm-1", Name: "Catherine", Email: "catherine@woolstore.com", Role: auth.RoleAdmin, PasswordHash: hashOf("admin123")},
		},
		customers: map[string]auth.User{
			"shopper@example.com": {ID: "cust-1", Name: "Shopper", Email: "shopper@example.com", Role: auth.RoleCustomer, PasswordHash: hashOf("knitting4ever")},
		},
	}
	authn := &auth.Authenticator{Users: users, Sessions: session.NewMemoryStore()}

	cat := &fakeCatalog{products: map[string]catalog.Product{
		"yarn": {ID: "yarn", Name: "Merino Yarn", PriceCents: 1999, Stock: 10},
	}}
	fo := &fakeOrders{orders: map[string]orders.Order{}}

	r := httpx.NewRouter()
	r.Use(httpx.WithSession(authn))
	(&httpx.AuthHandler{Auth: authn}).Register(r)
	(&httpx.CartHandler{Cart: &cart.Aggregator{Store: cart.NewMemoryStore(), Catalog: cat}}).Register(r)
	(&httpx.OrdersHandler{Service: fo}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, orders: fo}
}

func (e *env) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *env) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == httpx.SessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeErr(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Kind
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "shopper@example.com", "password": "knitting4ever"}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == httpx.SessionCookie {
			found = true
			require.True(t, c.HttpOnly)
			require.Equal(t, 3600, c.MaxAge)
		}
	}
	require.True(t, found)
}

func TestLoginInvalidCredentials(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "shopper@example.com", "password": "wrong"}, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", decodeErr(t, resp))
	require.Empty(t, resp.Cookies())
}

func TestLogoutInvalidatesSession(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	resp := e.do(t, http.MethodPost, "/auth/logout", nil, c)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/cart", nil, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartRequiresAuth(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/cart", nil, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", decodeErr(t, resp))
}

func TestCartFlow(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	resp := e.do(t, http.MethodPost, "/cart", map[string]any{"product_id": "yarn", "qty": 2}, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap cart.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, 3998, snap.TotalCents)

	resp = e.do(t, http.MethodPost, "/cart", map[string]any{"product_id": "yarn", "qty": 20}, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "insufficient_stock", decodeErr(t, resp))
}

func TestCreateOrderUsesSessionCustomer(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	// a customer cannot place orders on someone else's account
	resp := e.do(t, http.MethodPost, "/orders",
		map[string]any{"customer_id": "someone-else", "lines": []map[string]any{{"product_id": "yarn", "qty": 1}}}, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var o orders.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	require.Equal(t, "cust-1", o.CustomerID)
}

func TestCreateOrderRetriesTransientFailures(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	e.orders.createErr = []error{
		apperr.New(apperr.KindTransient, "store timeout"),
		apperr.New(apperr.KindTransient, "store timeout"),
		nil,
	}
	resp := e.do(t, http.MethodPost, "/orders",
		map[string]any{"lines": []map[string]any{{"product_id": "yarn", "qty": 1}}}, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, 3, e.orders.createCalls())
}

func TestCreateOrderStopsRetryingAfterClientGone(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	e.orders.blockOnCreate = true
	e.orders.createEntered = make(chan struct{}, 1)

	body, err := json.Marshal(map[string]any{"lines": []map[string]any{{"product_id": "yarn", "qty": 1}}})
	require.NoError(t, err)
	reqCtx, cancelReq := context.WithCancel(context.Background())
	defer cancelReq()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.srv.URL+"/orders", bytes.NewReader(body))
	require.NoError(t, err)
	req.AddCookie(c)

	// drop the client once the handler is inside the first attempt
	go func() {
		<-e.orders.createEntered
		cancelReq()
	}()
	_, err = http.DefaultClient.Do(req)
	require.Error(t, err)

	require.Eventually(t, func() bool { return e.orders.createCalls() == 1 }, time.Second, 10*time.Millisecond)
	// long enough for the two backoff attempts the old loop would burn
	time.Sleep(700 * time.Millisecond)
	require.Equal(t, 1, e.orders.createCalls())
}

func TestCreateOrderDoesNotRetryDefinitiveFailures(t *testing.T) {
	e := newEnv(t)
	c := e.login(t, "shopper@example.com", "knitting4ever")

	e.orders.createErr = []error{apperr.New(apperr.KindInsufficientStock, "insufficient stock for Merino Yarn")}
	resp := e.do(t, http.MethodPost, "/orders",
		map[string]any{"lines": []map[string]any{{"product_id": "yarn", "qty": 99}}}, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "insufficient_stock", decodeErr(t, resp))
	require.Equal(t, 1, e.orders.createCalls())
}

func TestGetOrderHiddenAcrossCustomers(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["o-1"] = orders.Order{ID: "o-1", CustomerID: "someone-else", Status: orders.StatusPending}

	c := e.login(t, "shopper@example.com", "knitting4ever")
	resp := e.do(t, http.MethodGet, "/orders/o-1", nil, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusUpdateAdminOnly(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["o-1"] = orders.Order{ID: "o-1", CustomerID: "cust-1", Status: orders.StatusPending}

	cust := e.login(t, "shopper@example.com", "knitting4ever")
	resp := e.do(t, http.MethodPost, "/orders/o-1/status", map[string]any{"status": "Shipped"}, cust)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	admin := e.login(t, "catherine@woolstore.com", "admin123")
	resp = e.do(t, http.MethodPost, "/orders/o-1/status", map[string]any{"status": "Shipped"}, admin)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var o orders.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	require.Equal(t, orders.StatusShipped, o.Status)
}

func TestStatusUpdateRejectsLineModification(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["o-1"] = orders.Order{ID: "o-1", CustomerID: "cust-1", Status: orders.StatusPending}

	admin := e.login(t, "catherine@woolstore.com", "admin123")
	resp := e.do(t, http.MethodPost, "/orders/o-1/status",
		map[string]any{"status": "Shipped", "lines": []map[string]any{{"product_id": "yarn", "qty": 99}}}, admin)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation", decodeErr(t, resp))
}

func TestCancelOrder(t *testing.T) {
	e := newEnv(t)
	e.orders.orders["o-1"] = orders.Order{ID: "o-1", CustomerID: "cust-1", Status: orders.StatusPending}
	e.orders.orders["o-2"] = orders.Order{ID: "o-2", CustomerID: "cust-1", Status: orders.StatusShipped}

	c := e.login(t, "shopper@example.com", "knitting4ever")

	resp := e.do(t, http.MethodPost, "/orders/o-1/cancel", nil, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var o orders.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	require.Equal(t, orders.StatusCancelled, o.Status)

	resp = e.do(t, http.MethodPost, "/orders/o-2/cancel", nil, c)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "invalid_state", decodeErr(t, resp))
}
