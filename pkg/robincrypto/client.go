// Package robincrypto is a typed client for the Robinhood Crypto trading
// API. Every request is signed with the account's ed25519 API key pair;
// responses are decoded into the core model types.
package robincrypto

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-botv1/internal/model"
)

const defaultRoot = "https://trading.robinhood.com"

var routes = map[string]string{
	"api.account":      "/api/v1/crypto/trading/accounts/",
	"api.best_bid_ask": "/api/v1/crypto/marketdata/best_bid_ask/",
	"api.orders":       "/api/v1/crypto/trading/orders/",
	"api.order":        "/api/v1/crypto/trading/orders/%s/",
	"api.order.cancel": "/api/v1/crypto/trading/orders/%s/cancel/",
}

// Config configures the API client.
type Config struct {
	APIKey        string
	PrivateKeyB64 string // base64-encoded ed25519 seed
	TOTPSecret    string // optional, for MFA-enrolled accounts
	RootURL       string // default: https://trading.robinhood.com
	Timeout       time.Duration
	Debug         bool
}

// Client is a Robinhood Crypto API client. It is safe for concurrent use.
type Client struct {
	apiKey     string
	privateKey ed25519.PrivateKey
	totpSecret string
	rootURL    string
	debug      bool
	httpClient *http.Client

	now func() time.Time
}

// New creates a Client from an API key and base64-encoded ed25519 seed.
func New(cfg Config) (*Client, error) {
	seed, err := base64.StdEncoding.DecodeString(cfg.PrivateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		privateKey: ed25519.NewKeyFromSeed(seed),
		totpSecret: cfg.TOTPSecret,
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		debug:      cfg.Debug,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

// ---- Signing ----

// signHeaders builds the authentication headers for one request. The signed
// message is api_key + timestamp + path + method + body, per the API spec.
func (c *Client) signHeaders(method, path string, body []byte) http.Header {
	ts := strconv.FormatInt(c.now().UTC().Unix(), 10)
	msg := c.apiKey + ts + path + method + string(body)
	sig := ed25519.Sign(c.privateKey, []byte(msg))

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("x-api-key", c.apiKey)
	h.Set("x-signature", base64.StdEncoding.EncodeToString(sig))
	h.Set("x-timestamp", ts)
	if c.totpSecret != "" {
		if code, err := MFACode(c.totpSecret); err == nil {
			h.Set("x-mfa-code", code)
		} else {
			log.Printf("[robincrypto] TOTP generation failed: %v", err)
		}
	}
	return h
}

// ---- Request helper ----

type apiError struct {
	Type   string `json:"type"`
	Errors []struct {
		Detail string `json:"detail"`
		Attr   string `json:"attr"`
	} `json:"errors"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, out any) error {
	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	// Sign over the path without the query string.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	req.Header = c.signHeaders(method, signPath, body)

	if c.debug {
		log.Printf("[robincrypto] %s %s body=%s", method, path, body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if c.debug {
		log.Printf("[robincrypto] response code=%d body=%s", resp.StatusCode, raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && len(ae.Errors) > 0 {
			return fmt.Errorf("%s %s: %d %s: %s", method, signPath, resp.StatusCode, ae.Type, ae.Errors[0].Detail)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, signPath, resp.StatusCode, truncate(raw, 200))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ---- Wire types ----

type bestBidAskResponse struct {
	Results []struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price,string"`
		Timestamp string  `json:"timestamp"`
	} `json:"results"`
}

type accountResponse struct {
	AccountNumber string  `json:"account_number"`
	Status        string  `json:"status"`
	BuyingPower   float64 `json:"buying_power,string"`
}

type marketOrderConfig struct {
	AssetQuantity string `json:"asset_quantity"`
}

type limitOrderConfig struct {
	AssetQuantity string `json:"asset_quantity"`
	LimitPrice    string `json:"limit_price"`
	TimeInForce   string `json:"time_in_force,omitempty"`
}

type stopLossOrderConfig struct {
	AssetQuantity string `json:"asset_quantity"`
	StopPrice     string `json:"stop_price"`
	TimeInForce   string `json:"time_in_force,omitempty"`
}

type orderPayload struct {
	ClientOrderID string               `json:"client_order_id"`
	Side          string               `json:"side"`
	Symbol        string               `json:"symbol"`
	Type          string               `json:"type"`
	MarketConfig  *marketOrderConfig   `json:"market_order_config,omitempty"`
	LimitConfig   *limitOrderConfig    `json:"limit_order_config,omitempty"`
	StopConfig    *stopLossOrderConfig `json:"stop_loss_order_config,omitempty"`
}

type orderResponse struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	State         string `json:"state"`
	AveragePrice  string `json:"average_price"`
	FilledQty     string `json:"filled_asset_quantity"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func (r *orderResponse) toModel() model.Order {
	avg, _ := strconv.ParseFloat(r.AveragePrice, 64)
	qty, _ := strconv.ParseFloat(r.FilledQty, 64)
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return model.Order{
		ID:            r.ID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          model.OrderSide(r.Side),
		Type:          model.OrderType(r.Type),
		AssetQty:      qty,
		AvgPrice:      avg,
		Status:        mapOrderState(r.State),
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
}

// mapOrderState maps the API's order states onto the core statuses. The API
// spells cancellation "canceled"; partial fills stay open until the order
// either fills or cancels.
func mapOrderState(state string) model.OrderStatus {
	switch state {
	case "filled":
		return model.OrderFilled
	case "canceled", "cancelled":
		return model.OrderCancelled
	case "failed", "rejected":
		return model.OrderFailed
	default: // "open", "partially_filled", "pending"
		return model.OrderOpen
	}
}

// ---- ExchangeClient implementation ----

// GetQuotes returns the latest best-bid/ask midpoint price for each symbol
// in one batched call.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	q := url.Values{}
	for _, s := range symbols {
		q.Add("symbol", s)
	}
	path := routes["api.best_bid_ask"] + "?" + q.Encode()

	var resp bestBidAskResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	quotes := make([]model.Quote, 0, len(resp.Results))
	now := c.now()
	for _, r := range resp.Results {
		ts := now
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			ts = parsed
		}
		quotes = append(quotes, model.Quote{Symbol: r.Symbol, Price: r.Price, TS: ts})
	}
	return quotes, nil
}

// PlaceOrder submits an order. The request's Type selects which order
// config block is sent.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	qty := strconv.FormatFloat(req.AssetQty, 'f', -1, 64)
	price := strconv.FormatFloat(req.StopPrice, 'f', -1, 64)

	payload := orderPayload{
		ClientOrderID: req.ClientOrderID,
		Side:          string(req.Side),
		Symbol:        req.Symbol,
		Type:          string(req.Type),
	}
	switch req.Type {
	case model.TypeMarket:
		payload.MarketConfig = &marketOrderConfig{AssetQuantity: qty}
	case model.TypeLimit:
		payload.LimitConfig = &limitOrderConfig{
			AssetQuantity: qty,
			LimitPrice:    price,
			TimeInForce:   req.TimeInForce,
		}
	case model.TypeStopLoss:
		payload.StopConfig = &stopLossOrderConfig{
			AssetQuantity: qty,
			StopPrice:     price,
			TimeInForce:   req.TimeInForce,
		}
	default:
		return model.Order{}, fmt.Errorf("unsupported order type %q", req.Type)
	}

	var resp orderResponse
	if err := c.doRequest(ctx, http.MethodPost, routes["api.orders"], payload, &resp); err != nil {
		return model.Order{}, err
	}
	return resp.toModel(), nil
}

// GetOrder returns the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	path := fmt.Sprintf(routes["api.order"], url.PathEscape(orderID))
	var resp orderResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.Order{}, err
	}
	return resp.toModel(), nil
}

// CancelOrder requests cancellation of a resting order. Cancellation is
// asynchronous on the exchange side; confirmation comes from GetOrder.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf(routes["api.order.cancel"], url.PathEscape(orderID))
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// GetAccount returns the trading account, including buying power.
func (c *Client) GetAccount(ctx context.Context) (model.Account, error) {
	var resp accountResponse
	if err := c.doRequest(ctx, http.MethodGet, routes["api.account"], nil, &resp); err != nil {
		return model.Account{}, err
	}
	return model.Account{
		AccountNumber: resp.AccountNumber,
		BuyingPower:   resp.BuyingPower,
	}, nil
}
