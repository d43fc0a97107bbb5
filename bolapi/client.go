package bolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	acceptJSON = "application/vnd.retailer.v8+json"
	acceptCSV  = "application/vnd.retailer.v8+csv"
)

// Client talks to the bol.com Retailer API for one instance. It refreshes
// the OAuth2 client-credentials token transparently and persists the new
// bearer through the PersistToken hook.
type Client struct {
	baseURL  string
	tokenURL string
	http     *http.Client
	limiter  <-chan time.Time

	clientId       string
	clientSecret   string
	token          string
	tokenExpiresAt time.Time

	// PersistToken stores a refreshed token so concurrent workers reuse it.
	persistToken func(ctx context.Context, token string, expiresAt time.Time) error

	// sleep is swapped out in tests.
	sleep func(d time.Duration)
}

type Config struct {
	ClientId       string
	ClientSecret   string
	Token          string
	TokenExpiresAt time.Time
	PersistToken   func(ctx context.Context, token string, expiresAt time.Time) error
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientId) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("bol client credentials are empty")
	}

	baseURL := strings.TrimSpace(os.Getenv("BOL_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.bol.com/retailer"
	}
	tokenURL := strings.TrimSpace(os.Getenv("BOL_TOKEN_URL"))
	if tokenURL == "" {
		tokenURL = "https://login.bol.com/token"
	}

	rateLimitPerMin := int64(100)
	if v := strings.TrimSpace(os.Getenv("BOL_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := parseInt64(v); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	persist := cfg.PersistToken
	if persist == nil {
		persist = func(context.Context, string, time.Time) error { return nil }
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokenURL:       tokenURL,
		http:           &http.Client{Timeout: 30 * time.Second},
		limiter:        time.Tick(interval),
		clientId:       cfg.ClientId,
		clientSecret:   cfg.ClientSecret,
		token:          cfg.Token,
		tokenExpiresAt: cfg.TokenExpiresAt,
		persistToken:   persist,
		sleep:          time.Sleep,
	}, nil
}

// EnsureToken refreshes the bearer when it is missing or expired.
func (c *Client) EnsureToken(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpiresAt.Add(-30*time.Second)) {
		return nil
	}
	return c.refreshToken(ctx)
}

func (c *Client) refreshToken(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientId)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}
	if parsed.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	c.token = "Bearer " + parsed.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return c.persistToken(ctx, c.token, c.tokenExpiresAt)
}

// Token returns the current bearer, refreshing it first when needed. Used by
// the connect endpoint to validate credentials.
func (c *Client) Token(ctx context.Context) (string, error) {
	if err := c.EnsureToken(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// do performs one API call with the standard recovery policy: an auth
// rejection refreshes the token and retries once, a 429 sleeps and retries
// once, a 404 is returned as NotFoundError for the caller to skip.
func (c *Client) do(ctx context.Context, method string, path string, accept string, payload interface{}) (int, []byte, error) {
	status, body, err := c.doOnce(ctx, method, path, accept, payload)
	if err == nil {
		return status, body, nil
	}
	if IsAuth(err) {
		if refreshErr := c.refreshToken(ctx); refreshErr != nil {
			return 0, nil, refreshErr
		}
		return c.doOnce(ctx, method, path, accept, payload)
	}
	if IsRateLimited(err) {
		c.sleep(5 * time.Second)
		return c.doOnce(ctx, method, path, accept, payload)
	}
	return status, body, err
}

func (c *Client) doOnce(ctx context.Context, method string, path string, accept string, payload interface{}) (int, []byte, error) {
	if err := c.EnsureToken(ctx); err != nil {
		return 0, nil, err
	}
	<-c.limiter

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", acceptJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, body, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, body, &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, body, &RateLimitedError{}
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, body, &NotFoundError{Path: path}
	default:
		return resp.StatusCode, body, &ValidationError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

// GetOrders lists open orders one page at a time. An empty slice means the
// listing is exhausted.
func (c *Client) GetOrders(ctx context.Context, page int, fulfilmentMethod string) ([]ReducedOrder, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	params.Set("status", "OPEN")
	if fulfilmentMethod != "" {
		params.Set("fulfilment-method", fulfilmentMethod)
	}
	status, body, err := c.do(ctx, http.MethodGet, "/orders?"+params.Encode(), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	// the API answers 204 when the page is past the end
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	var parsed ordersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Orders, nil
}

func (c *Client) GetOrder(ctx context.Context, orderId string) (*Order, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderId), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var parsed Order
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GetOrdersByIds fetches specific orders, skipping ids the API no longer has.
func (c *Client) GetOrdersByIds(ctx context.Context, orderIds []string) ([]*Order, error) {
	var orders []*Order
	for _, id := range orderIds {
		order, err := c.GetOrder(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return orders, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (c *Client) GetShipments(ctx context.Context, page int, fulfilmentMethod string) ([]Shipment, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	if fulfilmentMethod != "" {
		params.Set("fulfilment-method", fulfilmentMethod)
	}
	status, body, err := c.do(ctx, http.MethodGet, "/shipments?"+params.Encode(), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	var parsed shipmentsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Shipments, nil
}

// UpdateOfferStock publishes the clamped stock amount for one offer.
func (c *Client) UpdateOfferStock(ctx context.Context, offerId string, amount int) error {
	payload := map[string]interface{}{
		"amount":            amount,
		"managedByRetailer": true,
	}
	_, _, err := c.do(ctx, http.MethodPut, "/offers/"+url.PathEscape(offerId)+"/stock", acceptJSON, payload)
	return err
}

// UpdateOfferPrice publishes a single bundle price for one offer.
func (c *Client) UpdateOfferPrice(ctx context.Context, offerId string, price decimal.Decimal) error {
	payload := map[string]interface{}{
		"pricing": map[string]interface{}{
			"bundlePrices": []map[string]interface{}{
				{
					"quantity":  1,
					"unitPrice": price.Round(2),
				},
			},
		},
	}
	_, _, err := c.do(ctx, http.MethodPut, "/offers/"+url.PathEscape(offerId)+"/price", acceptJSON, payload)
	return err
}

// CreateShipment confirms delivery of order items. The API answers 202 when
// the confirmation is accepted for processing.
func (c *Client) CreateShipment(ctx context.Context, request ShipmentRequest) (int, error) {
	status, _, err := c.do(ctx, http.MethodPut, "/orders/shipment", acceptJSON, request)
	return status, err
}

// RequestOfferExport asks for a CSV offer export and returns the process
// status id to poll.
func (c *Client) RequestOfferExport(ctx context.Context) (string, error) {
	payload := map[string]string{"format": "CSV"}
	_, body, err := c.do(ctx, http.MethodPost, "/offers/export", acceptJSON, payload)
	if err != nil {
		return "", err
	}
	var parsed ProcessStatus
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.ProcessStatusId.String() == "" {
		return "", errors.New("offer export accepted without processStatusId")
	}
	return parsed.ProcessStatusId.String(), nil
}

func (c *Client) GetProcessStatus(ctx context.Context, processStatusId string) (*ProcessStatus, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/process-status/"+url.PathEscape(processStatusId), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var parsed ProcessStatus
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GetOfferExport downloads the finished CSV export and parses it.
func (c *Client) GetOfferExport(ctx context.Context, entityId string) ([]OfferReportRow, error) {
	_, body, err := c.do(ctx, http.MethodGet, "/offers/export/"+url.PathEscape(entityId), acceptCSV, nil)
	if err != nil {
		return nil, err
	}
	return parseOfferReport(body)
}

func (c *Client) GetInventory(ctx context.Context, page int) ([]InventoryItem, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	status, body, err := c.do(ctx, http.MethodGet, "/inventory?"+params.Encode(), acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	var parsed inventoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Inventory, nil
}
