package wazirx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spread-trading/internal/config"
	"spread-trading/internal/core"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthSigned
)

const (
	pathDepth        = "/sapi/v1/depth"
	pathOrder        = "/sapi/v1/order"
	pathExchangeInfo = "/sapi/v1/exchangeInfo"
	pathTickers      = "/sapi/v1/tickers/24hr"
	pathFunds        = "/sapi/v1/funds"
)

// Client talks to the WazirX REST API.
type Client struct {
	apiKey            string
	apiSecret         string
	baseURL           string
	clientOrderPrefix string
	userAgent         string
	recvWindow        time.Duration
	httpClient        *http.Client
	now               func() time.Time

	mu      sync.Mutex
	symbols map[string]SymbolInfo
}

type Options struct {
	APIKey            string
	APISecret         string
	RestBaseURL       string
	ClientOrderPrefix string
	UserAgent         string
	RecvWindowMs      int64
	HTTPTimeoutSec    int64
}

// NewClient builds a client from config. Trading calls need credentials;
// public market data does not, so requireAuth is false for the screener and
// for dry runs.
func NewClient(cfg config.ExchangeConfig, instanceID string, requireAuth bool) (*Client, error) {
	if requireAuth && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, fmt.Errorf("%w: api_key/api_secret required", core.ErrInvalidConfig)
	}
	return NewClientWithOptions(Options{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		RestBaseURL:       cfg.RestBaseURL,
		ClientOrderPrefix: instanceID,
		UserAgent:         cfg.UserAgent,
		RecvWindowMs:      cfg.RecvWindowMs,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	return &Client{
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		clientOrderPrefix: normalizeClientOrderPrefix(opts.ClientOrderPrefix),
		userAgent:         opts.UserAgent,
		recvWindow:        time.Duration(opts.RecvWindowMs) * time.Millisecond,
		httpClient:        &http.Client{Timeout: timeout},
		now:               time.Now,
		symbols:           make(map[string]SymbolInfo),
	}
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "sp"
	}
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

func (c *Client) newClientOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return c.clientOrderPrefix + "-" + id[:24]
}

func (c *Client) Name() string { return "wazirx" }

func (c *Client) Depth(ctx context.Context, symbol string, limit int) (core.Depth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doRequest(ctx, http.MethodGet, pathDepth, params, AuthNone)
	if err != nil {
		return core.Depth{}, err
	}
	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Depth{}, fmt.Errorf("decode depth %s: %w", symbol, err)
	}
	bids, err := parseLevels(resp.Bids)
	if err != nil {
		return core.Depth{}, fmt.Errorf("depth %s bids: %w", symbol, err)
	}
	asks, err := parseLevels(resp.Asks)
	if err != nil {
		return core.Depth{}, fmt.Errorf("depth %s asks: %w", symbol, err)
	}
	depth := core.Depth{Symbol: symbol, Bids: bids, Asks: asks, Time: c.now().UTC()}
	if resp.Timestamp > 0 {
		depth.Time = msTime(resp.Timestamp)
	}
	return depth, nil
}

func (c *Client) Rules(ctx context.Context, symbol string) (core.Rules, error) {
	info, err := c.symbolInfo(ctx, symbol)
	if err != nil {
		return core.Rules{}, err
	}
	return info.Rules, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if order.Symbol == "" {
		return core.Order{}, errors.New("symbol required")
	}
	if order.ClientID == "" {
		order.ClientID = c.newClientOrderID()
	}
	orderType := order.Type
	if orderType == "" {
		orderType = core.Limit
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(orderType))
	params.Set("quantity", order.Qty.String())
	params.Set("price", core.FormatPrice(order.Price))
	if orderType == core.StopLimit {
		params.Set("stopPrice", core.FormatPrice(order.StopPrice))
	}
	params.Set("clientOrderId", order.ClientID)
	body, err := c.doRequest(ctx, http.MethodPost, pathOrder, params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, fmt.Errorf("decode order: %w", err)
	}
	placed := resp.toOrder()
	if placed.ID == "" {
		return core.Order{}, fmt.Errorf("%w: order response without id", core.ErrOrderRejected)
	}
	if placed.Symbol == "" {
		placed.Symbol = order.Symbol
	}
	if placed.Side == "" {
		placed.Side = order.Side
	}
	if placed.Price.IsZero() {
		placed.Price = order.Price
	}
	if placed.Qty.IsZero() {
		placed.Qty = order.Qty
	}
	if placed.ClientID == "" {
		placed.ClientID = order.ClientID
	}
	return placed, nil
}

func (c *Client) QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderQuery, error) {
	if orderID == "" {
		return core.OrderQuery{}, errors.New("orderID required")
	}
	params := url.Values{}
	params.Set("orderId", orderID)
	body, err := c.doRequest(ctx, http.MethodGet, pathOrder, params, AuthSigned)
	if err != nil {
		return core.OrderQuery{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderQuery{}, fmt.Errorf("decode order query: %w", err)
	}
	q := resp.toQuery()
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.doRequest(ctx, http.MethodDelete, pathOrder, params, AuthSigned)
	return err
}

// Symbols lists every market from exchangeInfo and refreshes the rules cache.
func (c *Client) Symbols(ctx context.Context) ([]SymbolInfo, error) {
	body, err := c.doRequest(ctx, http.MethodGet, pathExchangeInfo, url.Values{}, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchangeInfo: %w", err)
	}
	out := make([]SymbolInfo, 0, len(resp.Symbols))
	c.mu.Lock()
	for _, s := range resp.Symbols {
		info := parseSymbolInfo(s)
		c.symbols[info.Symbol] = info
		out = append(out, info)
	}
	c.mu.Unlock()
	return out, nil
}

func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	body, err := c.doRequest(ctx, http.MethodGet, pathTickers, url.Values{}, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp []tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	out := make([]Ticker, 0, len(resp))
	for _, t := range resp {
		out = append(out, parseTicker(t))
	}
	return out, nil
}

// Funds lists the account balances. Asset names are lower case.
func (c *Client) Funds(ctx context.Context) ([]Fund, error) {
	body, err := c.doRequest(ctx, http.MethodGet, pathFunds, url.Values{}, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []fundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode funds: %w", err)
	}
	out := make([]Fund, 0, len(resp))
	for _, f := range resp {
		out = append(out, Fund{
			Asset:  strings.ToLower(f.Asset),
			Free:   parseDecimal(f.Free),
			Locked: parseDecimal(f.Locked),
		})
	}
	return out, nil
}

func (c *Client) symbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if symbol == "" {
		return SymbolInfo{}, errors.New("symbol is required")
	}
	c.mu.Lock()
	info, ok := c.symbols[symbol]
	c.mu.Unlock()
	if ok {
		return info, nil
	}
	if _, err := c.Symbols(ctx); err != nil {
		return SymbolInfo{}, err
	}
	c.mu.Lock()
	info, ok = c.symbols[symbol]
	c.mu.Unlock()
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s", core.ErrUnknownAsset, symbol)
	}
	return info, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if auth == AuthSigned {
		if c.apiKey == "" || c.apiSecret == "" {
			return nil, fmt.Errorf("%w: credentials not configured", core.ErrAuth)
		}
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("signature", sign(c.apiSecret, params.Encode()))
	}
	var (
		req *http.Request
		err error
	)
	urlStr := c.baseURL + path
	if method == http.MethodGet {
		if encoded := params.Encode(); encoded != "" {
			urlStr += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(params.Encode()))
	}
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthSigned {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wazirx %s %s: %w", method, path, errors.Join(core.ErrTransient, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wazirx %s %s: %w", method, path, errors.Join(core.ErrTransient, err))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// sign returns the hex HMAC-SHA256 of payload. The signature parameter must
// be appended after every other parameter is set.
func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
