package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/cart/storage"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/reconcile"
	"github.com/fjod/storefront/internal/records"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	router  http.Handler
	db      records.Store
	catalog *catalog.Reader
	orders  *orders.Repository
}

func setupEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	db := records.NewMemoryStore()

	authSvc, err := auth.NewService(db, auth.NewRedisDenylist(client), auth.Config{Secret: []byte("test-secret")}, logger)
	require.NoError(t, err)

	manager := cart.NewManager(storage.NewRedisStorage(client), logger)
	t.Cleanup(func() { _ = manager.Close() })

	reader := catalog.NewReader(catalog.NewRepository(db), logger, time.Minute)
	repo := orders.NewRepository(db)
	calc := pricing.NewCalculator(pricing.DefaultRules())
	workflow := checkout.NewWorkflow(calc, repo, payment.NewSandbox(nil), nil, logger, checkout.Config{})

	router := NewRouter(Deps{
		Auth:       authSvc,
		Carts:      manager,
		Products:   reader,
		Orders:     repo,
		Workflow:   workflow,
		Reconciler: reconcile.NewReconciler(repo, reconcile.PolicyCorrect, logger),
		Pricing:    calc,
		Health: func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	}, logger, 5*time.Second)

	return &testEnv{router: router, db: db, catalog: reader, orders: repo}
}

type client struct {
	t      *testing.T
	env    *testEnv
	token  string
	cookie *http.Cookie
}

func (e *testEnv) client(t *testing.T) *client {
	return &client{t: t, env: e}
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	rec := httptest.NewRecorder()
	c.env.router.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) product(t *testing.T, name, category string, price int64) *domain.Product {
	p, err := e.catalog.CreateProduct(context.Background(), domain.Product{
		Name:     name,
		Category: category,
		Price:    decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return p
}

func (c *client) signUpAndIn(email string) auth.User {
	c.t.Helper()
	creds := CredentialsDTO{Email: email, Password: "secret1"}

	rec := c.do(http.MethodPost, "/api/v1/auth/signup", creds)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/v1/auth/signin", creds)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SessionResponseDTO](c.t, rec)
	c.token = resp.Token
	return resp.User
}

func (e *testEnv) promote(t *testing.T, userID string) {
	n, err := e.db.Update(context.Background(), records.TableProfiles,
		records.Filter{"id": userID}, records.Row{"role": string(auth.RoleAdmin)})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func codCheckout() CheckoutRequestDTO {
	return CheckoutRequestDTO{
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		ShippingAddress: domain.ShippingAddress{
			FullName: "Asha Rao",
			Address:  "12 MG Road",
			City:     "Pune",
		},
	}
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)
	rec := env.client(t).do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestProducts_ListAndGet(t *testing.T) {
	env := setupEnv(t)
	shoes := env.product(t, "Running Shoes", "Footwear", 2500)
	env.product(t, "Socks", "Footwear", 200)
	env.product(t, "Mug", "Kitchen", 300)
	c := env.client(t)

	rec := c.do(http.MethodGet, "/api/v1/products?category=Footwear&sort=price_desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ProductListDTO](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "Running Shoes", list.Products[0].Name)

	rec = c.do(http.MethodGet, "/api/v1/products?price_range=Under%20500&search=MUG", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[ProductListDTO](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Mug", list.Products[0].Name)

	rec = c.do(http.MethodGet, "/api/v1/products/"+shoes.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shoes.ID, decode[domain.Product](t, rec).ID)

	rec = c.do(http.MethodGet, "/api/v1/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodGet, "/api/v1/products?sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/v1/products/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[map[string][]string](t, rec)
	require.Len(t, cats["categories"], 3)
	assert.Equal(t, "All", cats["categories"][0])
	assert.ElementsMatch(t, []string{"Footwear", "Kitchen"}, cats["categories"][1:])
}

func TestCart_GuestFlow(t *testing.T) {
	env := setupEnv(t)
	p := env.product(t, "Lamp", "Home", 100)
	c := env.client(t)

	rec := c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: p.ID, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, c.cookie, "guest session cookie is issued")

	rec = c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: p.ID, Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[CartResponseDTO](t, rec)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 5, got.Lines[0].Quantity)
	assert.Equal(t, 5, got.Count)
	assert.True(t, decimal.NewFromInt(500).Equal(got.Total))
	assert.Equal(t, "guest:"+c.cookie.Value, got.Key)

	rec = c.do(http.MethodGet, "/api/v1/cart/quote?promo_code=save10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[QuoteResponseDTO](t, rec)
	assert.True(t, quote.DiscountApplied)
	assert.Equal(t, "450.00", quote.Display["grand_total"])

	rec = c.do(http.MethodPut, "/api/v1/cart/items/"+p.ID, UpdateQuantityRequestDTO{Quantity: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[CartResponseDTO](t, rec)
	assert.Empty(t, got.Lines)
	assert.Equal(t, 0, got.Count)

	rec = c.do(http.MethodDelete, "/api/v1/cart/items/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCart_AddValidation(t *testing.T) {
	env := setupEnv(t)
	c := env.client(t)

	rec := c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: "nope", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: "x", Quantity: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth_SignInMergesGuestCart(t *testing.T) {
	env := setupEnv(t)
	p := env.product(t, "Kettle", "Kitchen", 700)
	c := env.client(t)

	rec := c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: p.ID, Quantity: 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	user := c.signUpAndIn("merge@example.com")

	rec = c.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[CartResponseDTO](t, rec)
	assert.Equal(t, "user:"+user.ID, got.Key)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, p.ID, got.Lines[0].ProductID)

	// the guest cart is gone
	c.token = ""
	rec = c.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Lines)
}

func TestAuth_SessionAndSignOut(t *testing.T) {
	env := setupEnv(t)
	c := env.client(t)

	rec := c.do(http.MethodGet, "/api/v1/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user := c.signUpAndIn("session@example.com")

	rec = c.do(http.MethodGet, "/api/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[SessionResponseDTO](t, rec)
	assert.Equal(t, user.ID, sess.User.ID)
	assert.Equal(t, auth.RoleCustomer, sess.Role)

	rec = c.do(http.MethodPost, "/api/v1/auth/signout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_Errors(t *testing.T) {
	env := setupEnv(t)
	c := env.client(t)
	c.signUpAndIn("dup@example.com")
	c.token = ""

	rec := c.do(http.MethodPost, "/api/v1/auth/signup", CredentialsDTO{Email: "dup@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/auth/signup", CredentialsDTO{Email: "short@example.com", Password: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/auth/signin", CredentialsDTO{Email: "dup@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.token = "not-a-jwt"
	rec = c.do(http.MethodGet, "/api/v1/products", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_EndToEnd(t *testing.T) {
	env := setupEnv(t)
	a := env.product(t, "Product A", "Misc", 500)
	c := env.client(t)
	user := c.signUpAndIn("buyer@example.com")

	c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: a.ID, Quantity: 1})
	rec := c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: a.ID, Quantity: 2})
	got := decode[CartResponseDTO](t, rec)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(1500).Equal(got.Total))

	rec = c.do(http.MethodPost, "/api/v1/checkout", codCheckout())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CheckoutResponseDTO](t, rec)
	assert.Equal(t, "COMPLETED", resp.Status)
	require.NotNil(t, resp.Order)
	assert.True(t, decimal.NewFromInt(1500).Equal(resp.Order.TotalAmount))
	assert.Equal(t, domain.PaymentStatusPending, resp.Order.PaymentStatus)

	rec = c.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Lines)

	rec = c.do(http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[OrderListDTO](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, user.ID, list.Orders[0].UserID)
	require.Len(t, list.Orders[0].Lines, 1)
	assert.Equal(t, 3, list.Orders[0].Lines[0].Quantity)

	rec = c.do(http.MethodGet, "/api/v1/orders/"+resp.Order.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// another user cannot see it
	other := env.client(t)
	other.signUpAndIn("other@example.com")
	rec = other.do(http.MethodGet, "/api/v1/orders/"+resp.Order.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_UnrecordedTransactionIsRefused(t *testing.T) {
	env := setupEnv(t)
	a := env.product(t, "Product A", "Misc", 500)
	c := env.client(t)
	c.signUpAndIn("buyer@example.com")
	c.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: a.ID, Quantity: 1})

	body := codCheckout()
	body.PaymentMethod = domain.PaymentMethodGateway
	body.TransactionID = "forged-123"
	rec := c.do(http.MethodPost, "/api/v1/checkout", body)
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	assert.Equal(t, "payment_failed", decode[ErrorResponse](t, rec).Code)

	rec = c.do(http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, 0, decode[OrderListDTO](t, rec).Count)

	rec = c.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decode[CartResponseDTO](t, rec).Lines, 1)
}

func TestCheckout_RequiresUserAndValidShipping(t *testing.T) {
	env := setupEnv(t)
	c := env.client(t)

	rec := c.do(http.MethodPost, "/api/v1/checkout", codCheckout())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.signUpAndIn("empty@example.com")
	rec = c.do(http.MethodPost, "/api/v1/checkout", CheckoutRequestDTO{PaymentMethod: domain.PaymentMethodCashOnDelivery})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", errResp.Code)
	assert.Equal(t, "fullName,address,city,cart", errResp.Details)

	rows, err := env.db.Select(context.Background(), records.TableOrders, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAdmin(t *testing.T) {
	env := setupEnv(t)
	p := env.product(t, "Desk", "Office", 400)

	buyer := env.client(t)
	buyer.signUpAndIn("customer@example.com")
	buyer.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: p.ID, Quantity: 1})
	rec := buyer.do(http.MethodPost, "/api/v1/checkout", codCheckout())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode[CheckoutResponseDTO](t, rec).Order.ID

	rec = buyer.do(http.MethodGet, "/api/v1/admin/dashboard", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := env.client(t)
	adminUser := admin.signUpAndIn("admin@example.com")
	env.promote(t, adminUser.ID)

	rec = admin.do(http.MethodGet, "/api/v1/admin/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[OrderListDTO](t, rec).Count)

	rec = admin.do(http.MethodPatch, "/api/v1/admin/orders/"+orderID+"/status", UpdateStatusRequestDTO{Status: domain.OrderStatusProcessing})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = admin.do(http.MethodPatch, "/api/v1/admin/orders/"+orderID+"/status", UpdateStatusRequestDTO{Status: domain.OrderStatusPending})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = admin.do(http.MethodPatch, "/api/v1/admin/orders/missing/status", UpdateStatusRequestDTO{Status: domain.OrderStatusProcessing})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = admin.do(http.MethodGet, "/api/v1/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalOrders   int `json:"total_orders"`
		TotalProducts int `json:"total_products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 1, stats.TotalProducts)

	rec = admin.do(http.MethodPost, "/api/v1/admin/products", CreateProductRequestDTO{Name: "Chair", Category: "Office", Price: decimal.NewFromInt(900)})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = admin.do(http.MethodPost, "/api/v1/admin/products", CreateProductRequestDTO{Name: " ", Price: decimal.NewFromInt(1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_Reconcile(t *testing.T) {
	env := setupEnv(t)
	p := env.product(t, "Lamp", "Home", 600)

	buyer := env.client(t)
	buyer.signUpAndIn("lamp@example.com")
	buyer.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: p.ID, Quantity: 1})
	rec := buyer.do(http.MethodPost, "/api/v1/checkout", codCheckout())
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode[CheckoutResponseDTO](t, rec).Order.ID

	require.NoError(t, env.orders.UpdateTotal(context.Background(), orderID, decimal.NewFromInt(1)))

	admin := env.client(t)
	adminUser := admin.signUpAndIn("ops@example.com")
	env.promote(t, adminUser.ID)

	rec = admin.do(http.MethodGet, "/api/v1/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[AuditResponseDTO](t, rec)
	require.Equal(t, 1, audit.Count)
	assert.Equal(t, orderID, audit.Drifts[0].OrderID)

	rec = admin.do(http.MethodPost, "/api/v1/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	applied := decode[ApplyResponseDTO](t, rec)
	assert.Equal(t, []string{orderID}, applied.Corrected)

	o, err := env.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(o.TotalAmount))
}
