package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vineyard-shop/internal/cartsession"
	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/domain/cart"
	"github.com/your-org/vineyard-shop/internal/domain/checkout"
	"github.com/your-org/vineyard-shop/internal/domain/product"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
	"github.com/your-org/vineyard-shop/internal/interfaces/http/handlers"
	"github.com/your-org/vineyard-shop/internal/interfaces/http/middleware"
	"github.com/your-org/vineyard-shop/internal/pkg/logging"
	"github.com/your-org/vineyard-shop/internal/storeclient"
)

type stubCatalog struct {
	products map[uint]*product.Product
}

func (s *stubCatalog) GetActive(ctx context.Context, id uint) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return nil, product.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubCatalog) GetProducts(ctx context.Context, req *product.ProductListRequest) (*product.ProductResponse, error) {
	resp := &product.ProductResponse{Products: []product.Product{}}
	for id := uint(1); id <= uint(len(s.products)); id++ {
		if p, ok := s.products[id]; ok && p.IsActive {
			resp.Products = append(resp.Products, *p)
		}
	}
	resp.Pagination = product.Pagination{Page: 1, Limit: 20, Total: int64(len(resp.Products)), TotalPages: 1}
	return resp, nil
}

type testAPI struct {
	engine *gin.Engine
	server *httptest.Server
	cfg    *config.Config
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		App: config.AppConfig{Name: "Vineyard Shop"},
		JWT: config.JWTConfig{
			Secret:            "test-secret-that-is-long-enough-for-hs256",
			AccessTokenExpiry: time.Hour,
		},
		Cart: config.CartConfig{GuestTTL: time.Hour, MaxQuantity: 24},
	}

	catalog := &stubCatalog{products: map[uint]*product.Product{
		1: {ID: 1, Name: "Barolo DOCG", Price: 4500, IsActive: true, TrackQuantity: true, Quantity: 12},
		2: {ID: 2, Name: "Rioja Crianza", Price: 1250, IsActive: true},
	}}
	logger := logging.Discard()

	cartService := cart.NewService(nil, rdb, catalog, cfg, logger)
	calculator := vat.NewCalculator("NL", nil)
	cartHandler := handlers.NewCartHandler(cartService, 3600, logger)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	SetupRoutes(engine.Group("/api/v1"), &Handlers{
		Cart:     cartHandler,
		Product:  handlers.NewProductHandler(catalog),
		VAT:      handlers.NewVATHandler(calculator),
		Checkout: handlers.NewCheckoutHandler(checkout.NewService(cartService, calculator), cartHandler),
	}, cfg)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &testAPI{engine: engine, server: srv, cfg: cfg}
}

func (a *testAPI) client(t *testing.T, sessionID, token string) *storeclient.Client {
	t.Helper()
	c, err := storeclient.NewClient(config.ClientConfig{
		BaseURL:     a.server.URL,
		SessionID:   sessionID,
		AccessToken: token,
	}, logging.Discard())
	require.NoError(t, err)
	return c
}

func (a *testAPI) do(t *testing.T, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSessionAgainstAPI(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	s := cartsession.New(api.client(t, sessionID, ""),
		cartsession.WithDebounceWindow(time.Hour),
		cartsession.WithLogger(logging.Discard()))
	t.Cleanup(s.Close)

	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.Snapshot().Lines)

	line, err := s.AddLine(ctx, "1", 2)
	require.NoError(t, err)
	assert.Equal(t, "1", line.ProductID)
	assert.Equal(t, int64(4500), line.UnitPriceMinorUnits)

	_, err = s.AddLine(ctx, "2", 1)
	require.NoError(t, err)

	require.NoError(t, s.SetQuantity(ctx, line.ID, 3))
	require.NoError(t, s.SetQuantity(ctx, line.ID, 5))
	assert.Equal(t, cartsession.Dirty, s.State())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, cartsession.Clean, s.State())

	// a second client on the same session sees the flushed state
	fresh, err := api.client(t, sessionID, "").FetchCart(ctx)
	require.NoError(t, err)
	require.Len(t, fresh.Lines, 2)
	assert.Equal(t, 6, fresh.TotalQuantity)
	assert.Equal(t, int64(5*4500+1250), fresh.SubtotalMinorUnits)
	assert.Equal(t, fresh.SubtotalMinorUnits, s.Snapshot().SubtotalMinorUnits)
}

func TestSessionRollsBackOnStockConflict(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	s := cartsession.New(api.client(t, uuid.New().String(), ""),
		cartsession.WithDebounceWindow(time.Hour),
		cartsession.WithLogger(logging.Discard()))
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(ctx))

	line, err := s.AddLine(ctx, "1", 5)
	require.NoError(t, err)

	// Barolo has 12 bottles in stock
	require.NoError(t, s.SetQuantity(ctx, line.ID, 20))
	assert.Equal(t, 20, s.Snapshot().TotalQuantity)

	err = s.Flush(ctx)
	var netErr *cartsession.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Contains(t, netErr.Message, "insufficient inventory")

	assert.Equal(t, cartsession.Clean, s.State())
	assert.Equal(t, 5, s.Snapshot().TotalQuantity)
}

func TestSessionRemoveAndClear(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	s := cartsession.New(api.client(t, sessionID, ""),
		cartsession.WithDebounceWindow(time.Hour),
		cartsession.WithLogger(logging.Discard()))
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(ctx))

	first, err := s.AddLine(ctx, "1", 1)
	require.NoError(t, err)
	_, err = s.AddLine(ctx, "2", 4)
	require.NoError(t, err)

	require.NoError(t, s.RemoveLine(ctx, first.ID))
	assert.Len(t, s.Snapshot().Lines, 1)

	require.NoError(t, s.ClearCart(ctx))
	assert.Empty(t, s.Snapshot().Lines)

	fresh, err := api.client(t, sessionID, "").FetchCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh.Lines)
}

func TestQuoteOverClient(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	c := api.client(t, uuid.New().String(), "")

	_, err := c.AddLine(ctx, "2", 4)
	require.NoError(t, err)

	quote, err := c.Quote(ctx, storeclient.QuoteRequest{CountryCode: "NL", ShippingAmountMinorUnits: 1000})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 1)
	assert.Equal(t, int64(5000), quote.Vat.BaseAmountMinorUnits)
	assert.Equal(t, int64(1260), quote.Vat.VatAmountMinorUnits)
	assert.Equal(t, int64(7260), quote.Vat.TotalAmountMinorUnits)
}

func TestInvalidTokenReadsAsEmptyCart(t *testing.T) {
	api := newTestAPI(t)

	snap, err := api.client(t, "", "not-a-jwt").FetchCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Lines)
}

func TestAuthenticatedRequestNeedsValidToken(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/cart/merge", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartEndpoints(t *testing.T) {
	api := newTestAPI(t)
	sessionID := uuid.New().String()

	w := api.do(t, http.MethodGet, "/api/v1/cart", sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sessionID, w.Header().Get("X-Session-ID"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = api.do(t, http.MethodPost, "/api/v1/cart/items", sessionID, `{"product_id":"1","quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	lineID := data["id"].(string)
	assert.Equal(t, "1", data["product_id"])
	assert.Equal(t, float64(9000), data["line_total_minor_units"])

	t.Run("validation", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/cart/items", sessionID, `{"product_id":"1","quantity":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = api.do(t, http.MethodPut, "/api/v1/cart/items/"+lineID, sessionID, `{"quantity":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = api.do(t, http.MethodPut, "/api/v1/cart/items/"+lineID, sessionID, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/cart/items", sessionID, `{"product_id":"99","quantity":1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("stock conflict", func(t *testing.T) {
		w := api.do(t, http.MethodPut, "/api/v1/cart/items/"+lineID, sessionID, `{"quantity":13}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, decode(t, w)["error"], "insufficient inventory")
	})

	t.Run("batch with missing line fails whole batch", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/cart/items", sessionID,
			`{"updates":[{"line_id":"`+lineID+`","quantity":4},{"line_id":"missing","quantity":1}]}`)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = api.do(t, http.MethodGet, "/api/v1/cart", sessionID, "")
		summary := decode(t, w)["data"].(map[string]interface{})["summary"].(map[string]interface{})
		assert.Equal(t, float64(2), summary["total_quantity"])
	})

	t.Run("batch", func(t *testing.T) {
		w := api.do(t, http.MethodPatch, "/api/v1/cart/items", sessionID,
			`{"updates":[{"line_id":"`+lineID+`","quantity":4}]}`)
		require.Equal(t, http.StatusOK, w.Code)
		lines := decode(t, w)["data"].(map[string]interface{})["lines"].([]interface{})
		require.Len(t, lines, 1)
		assert.Equal(t, float64(4), lines[0].(map[string]interface{})["quantity"])
	})

	t.Run("quantity zero deletes", func(t *testing.T) {
		w := api.do(t, http.MethodPut, "/api/v1/cart/items/"+lineID, sessionID, `{"quantity":0}`)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Contains(t, body, "data")
		assert.Nil(t, body["data"])

		w = api.do(t, http.MethodDelete, "/api/v1/cart/items/"+lineID, sessionID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("clear", func(t *testing.T) {
		w := api.do(t, http.MethodDelete, "/api/v1/cart", sessionID, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGuestSessionIsIssued(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/cart", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	issued := w.Header().Get("X-Session-ID")
	_, err := uuid.Parse(issued)
	require.NoError(t, err)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, issued, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestVATEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/vat/calculate", "", `{"amount_minor_units":7650,"country_code":"nl"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(1607), data["vat_amount_minor_units"])
	assert.Equal(t, float64(9257), data["total_amount_minor_units"])
	assert.Equal(t, "NL", data["country_code"])

	w = api.do(t, http.MethodPost, "/api/v1/vat/calculate", "", `{"amount_minor_units":-1,"country_code":"NL"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/vat/rates", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	rates := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "NL", rates["seller_country"])
	assert.NotEmpty(t, rates["rates"])

	w = api.do(t, http.MethodGet, "/api/v1/vat/rates?country=DE", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DE", decode(t, w)["data"].(map[string]interface{})["country_code"])

	w = api.do(t, http.MethodGet, "/api/v1/vat/rates?country=ZZ", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutEndpoints(t *testing.T) {
	api := newTestAPI(t)
	sessionID := uuid.New().String()

	w := api.do(t, http.MethodPost, "/api/v1/checkout/quote", sessionID, `{"country_code":"NL"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/checkout/quote", sessionID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/cart/items", sessionID, `{"product_id":"1","quantity":4}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/checkout/quote", sessionID, `{"country_code":"DE","shipping_method_id":"standard"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	vatResult := data["vat"].(map[string]interface{})
	// 18000 is above the free shipping threshold
	assert.Equal(t, float64(0), vatResult["shipping_amount_minor_units"])
	assert.Equal(t, float64(3420), vatResult["vat_amount_minor_units"])

	w = api.do(t, http.MethodGet, "/api/v1/checkout/shipping-methods?subtotal=100", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 2)

	w = api.do(t, http.MethodGet, "/api/v1/checkout/shipping-methods?subtotal=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	products := decode(t, w)["data"].(map[string]interface{})["products"].([]interface{})
	assert.Len(t, products, 2)

	w = api.do(t, http.MethodGet, "/api/v1/products/1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/products/42", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/products/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
