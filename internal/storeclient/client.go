// internal/storeclient/client.go
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/your-org/vineyard-shop/internal/cartsession"
	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
)

const apiPrefix = "/api/v1"

// SessionHeader carries the guest cart id when no cookie is present
const SessionHeader = "X-Session-ID"

// Client talks to the cart API and implements cartsession.BatchStore
type Client struct {
	baseURL     string
	sessionID   string
	accessToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      *logrus.Entry
}

var _ cartsession.BatchStore = (*Client)(nil)

// statusError is a non-2xx answer from the API
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.message)
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type cartData struct {
	Lines []cartsession.CartLine `json:"lines"`
}

// QuoteRequest asks the API for a VAT-inclusive total of the current cart
type QuoteRequest struct {
	CountryCode              string           `json:"country_code"`
	CustomerType             vat.CustomerType `json:"customer_type,omitempty"`
	BusinessVATNumber        string           `json:"business_vat_number,omitempty"`
	ShippingMethodID         string           `json:"shipping_method_id,omitempty"`
	ShippingAmountMinorUnits int64            `json:"shipping_amount_minor_units"`
}

// Quote is the API's checkout quote
type Quote struct {
	Lines []cartsession.CartLine `json:"lines"`
	Vat   vat.Result             `json:"vat"`
}

// Product is a catalog entry as listed by the API
type Product struct {
	ID            uint   `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Producer      string `json:"producer"`
	Region        string `json:"region"`
	OriginCountry string `json:"origin_country"`
	Vintage       int    `json:"vintage"`
	Price         int64  `json:"price"`
	TrackQuantity bool   `json:"track_quantity"`
	Quantity      int    `json:"quantity"`
}

// ProductPage is one page of the catalog
type ProductPage struct {
	Products   []Product `json:"products"`
	Pagination struct {
		Page       int   `json:"page"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	} `json:"pagination"`
}

// NewClient creates a client for the API at cfg.BaseURL
func NewClient(cfg config.ClientConfig, logger *logrus.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		sessionID:   cfg.SessionID,
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger: logger.WithField("component", "storeclient"),
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	probes := cfg.BreakerHalfOpenProbe
	if probes <= 0 {
		probes = 1
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "cart-api",
		MaxRequests: uint32(probes),
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		// 4xx answers mean the API is up
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.status < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c, nil
}

// SessionID returns the guest session id sent with every request
func (c *Client) SessionID() string {
	return c.sessionID
}

// FetchCart handles GET /cart. An unauthorized caller has an empty cart.
func (c *Client) FetchCart(ctx context.Context) (cartsession.Snapshot, error) {
	body, err := c.makeAPICall(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusUnauthorized {
			c.logger.Debug("Unauthorized cart fetch, treating as empty cart")
			return cartsession.NewSnapshot(nil), nil
		}
		return cartsession.Snapshot{}, mapError("fetch cart", "", err)
	}

	var resp envelope[cartData]
	if err := json.Unmarshal(body, &resp); err != nil {
		return cartsession.Snapshot{}, &cartsession.NetworkError{Op: "fetch cart", Message: "invalid response", Err: err}
	}
	return cartsession.NewSnapshot(resp.Data.Lines), nil
}

// AddLine handles POST /cart/items
func (c *Client) AddLine(ctx context.Context, productID string, quantity int) (cartsession.CartLine, error) {
	req := map[string]interface{}{
		"product_id": productID,
		"quantity":   quantity,
	}
	body, err := c.makeAPICall(ctx, http.MethodPost, "/cart/items", req)
	if err != nil {
		return cartsession.CartLine{}, mapError("add line", "", err)
	}

	var resp envelope[cartsession.CartLine]
	if err := json.Unmarshal(body, &resp); err != nil {
		return cartsession.CartLine{}, &cartsession.NetworkError{Op: "add line", Message: "invalid response", Err: err}
	}
	return resp.Data, nil
}

// SetQuantity handles PUT /cart/items/:id. A nil line means the API
// deleted it.
func (c *Client) SetQuantity(ctx context.Context, lineID string, quantity int) (*cartsession.CartLine, error) {
	req := map[string]int{"quantity": quantity}
	body, err := c.makeAPICall(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(lineID), req)
	if err != nil {
		return nil, mapError("set quantity", lineID, err)
	}

	var resp envelope[*cartsession.CartLine]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &cartsession.NetworkError{Op: "set quantity", Message: "invalid response", Err: err}
	}
	return resp.Data, nil
}

// SetQuantities handles PATCH /cart/items
func (c *Client) SetQuantities(ctx context.Context, updates []cartsession.QuantityUpdate) ([]cartsession.CartLine, error) {
	req := map[string]interface{}{"updates": updates}
	body, err := c.makeAPICall(ctx, http.MethodPatch, "/cart/items", req)
	if err != nil {
		return nil, mapError("set quantities", "", err)
	}

	var resp envelope[cartData]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &cartsession.NetworkError{Op: "set quantities", Message: "invalid response", Err: err}
	}
	return resp.Data.Lines, nil
}

// DeleteLine handles DELETE /cart/items/:id
func (c *Client) DeleteLine(ctx context.Context, lineID string) error {
	if _, err := c.makeAPICall(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(lineID), nil); err != nil {
		return mapError("delete line", lineID, err)
	}
	return nil
}

// MergeGuestCart handles POST /cart/merge after login
func (c *Client) MergeGuestCart(ctx context.Context) (cartsession.Snapshot, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, "/cart/merge", nil)
	if err != nil {
		return cartsession.Snapshot{}, mapError("merge cart", "", err)
	}

	var resp envelope[cartData]
	if err := json.Unmarshal(body, &resp); err != nil {
		return cartsession.Snapshot{}, &cartsession.NetworkError{Op: "merge cart", Message: "invalid response", Err: err}
	}
	return cartsession.NewSnapshot(resp.Data.Lines), nil
}

// Quote handles POST /checkout/quote
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	body, err := c.makeAPICall(ctx, http.MethodPost, "/checkout/quote", req)
	if err != nil {
		return nil, mapError("checkout quote", "", err)
	}

	var resp envelope[Quote]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &cartsession.NetworkError{Op: "checkout quote", Message: "invalid response", Err: err}
	}
	return &resp.Data, nil
}

// ListProducts handles GET /products
func (c *Client) ListProducts(ctx context.Context, region, search string, page int) (*ProductPage, error) {
	query := url.Values{}
	if region != "" {
		query.Set("region", region)
	}
	if search != "" {
		query.Set("search", search)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	endpoint := "/products"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := c.makeAPICall(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, mapError("list products", "", err)
	}

	var resp envelope[ProductPage]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &cartsession.NetworkError{Op: "list products", Message: "invalid response", Err: err}
	}
	return &resp.Data, nil
}

// makeAPICall sends one request through the circuit breaker and returns the
// body of a 2xx answer
func (c *Client) makeAPICall(ctx context.Context, method, endpoint string, data interface{}) ([]byte, error) {
	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		// Set headers
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.sessionID != "" {
			req.Header.Set(SessionHeader, c.sessionID)
		}
		if c.accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.accessToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make API call: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   endpoint,
			"status": resp.StatusCode,
		}).Debug("Cart API call")

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &statusError{status: resp.StatusCode, message: errorMessage(respBody)}
		}
		return respBody, nil
	})
}

// errorMessage extracts the "error" field of a gin error body
func errorMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error
}

func mapError(op, lineID string, err error) error {
	var se *statusError
	switch {
	case errors.As(err, &se) && se.status == http.StatusNotFound && lineID != "":
		return &cartsession.NotFoundError{LineID: lineID}
	case errors.As(err, &se):
		return &cartsession.NetworkError{Op: op, Message: se.message, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &cartsession.NetworkError{Op: op, Message: "cart service unavailable", Err: err}
	}
	return &cartsession.NetworkError{Op: op, Err: err}
}
