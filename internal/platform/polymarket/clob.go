// Package polymarket contains the CLOB REST client and the market-data
// WebSocket client.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polymaker/internal/crypto"
	"github.com/alanyoungcy/polymaker/internal/domain"
)

// amountScale converts human sizes to the CLOB's 6-decimal fixed point.
const amountScale = 1e6

// ClobClient talks to the Polymarket CLOB REST API. It implements the
// same surface as the in-memory shadow exchange, so the keeper runs
// against either without knowing which.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	creds      *crypto.APICreds
	market     domain.Market
}

var _ domain.ExchangeClient = (*ClobClient)(nil)

// NewClobClient creates a client for the given API root, e.g.
// "https://clob.polymarket.com". Call DeriveAPIKey before any
// authenticated operation unless creds are supplied up front.
func NewClobClient(baseURL string, signer *crypto.Signer, creds *crypto.APICreds, market domain.Market) *ClobClient {
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		creds:      creds,
		market:     market,
	}
}

// DeriveAPIKey runs the L1 auth flow: sign a ClobAuth message and exchange
// it for HMAC credentials used on subsequent requests.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()

	sig, err := c.signer.SignAuthMessage(address, timestamp, 0)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: build auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, body)
	}

	var creds struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	c.creds = &crypto.APICreds{Key: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase}
	return nil
}

// PlaceOrder signs and submits a limit order, returning the exchange ID.
func (c *ClobClient) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	if order.Price <= 0 || order.Price >= 1 || order.Size <= 0 {
		return "", fmt.Errorf("polymarket/clob: price %.4f size %.2f: %w", order.Price, order.Size, domain.ErrInvalidOrder)
	}
	tokenID := c.market.TokenID(order.Token)
	if tokenID == "" {
		return "", fmt.Errorf("polymarket/clob: unknown token %q: %w", order.Token, domain.ErrInvalidOrder)
	}

	address := c.signer.Address().Hex()
	signable := crypto.SignableOrder{
		Salt:       strconv.FormatInt(time.Now().UnixNano(), 10),
		Maker:      address,
		Signer:     address,
		Taker:      "0x0000000000000000000000000000000000000000",
		TokenID:    tokenID,
		Expiration: "0",
		Nonce:      "0",
		FeeRateBps: "0",
	}

	tokenUnits := strconv.FormatInt(int64(math.Round(order.Size*amountScale)), 10)
	collateralUnits := strconv.FormatInt(int64(math.Round(order.Price*order.Size*amountScale)), 10)
	if order.Side == domain.SideBuy {
		signable.Side = 0
		signable.MakerAmount = collateralUnits
		signable.TakerAmount = tokenUnits
	} else {
		signable.Side = 1
		signable.MakerAmount = tokenUnits
		signable.TakerAmount = collateralUnits
	}

	sig, err := c.signer.SignOrder(signable)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	payload := map[string]any{
		"order": map[string]any{
			"salt":          signable.Salt,
			"maker":         signable.Maker,
			"signer":        signable.Signer,
			"taker":         signable.Taker,
			"tokenID":       signable.TokenID,
			"makerAmount":   signable.MakerAmount,
			"takerAmount":   signable.TakerAmount,
			"expiration":    signable.Expiration,
			"nonce":         signable.Nonce,
			"feeRateBps":    signable.FeeRateBps,
			"side":          string(order.Side),
			"signatureType": signable.SignatureType,
			"signature":     sig,
		},
		"owner":     address,
		"orderType": "GTC",
	}

	body, err := c.do(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		if strings.Contains(strings.ToLower(result.ErrorMsg), "balance") {
			return "", fmt.Errorf("polymarket/clob: %s: %w", result.ErrorMsg, domain.ErrInsufficientBalance)
		}
		return "", fmt.Errorf("polymarket/clob: %s: %w", result.ErrorMsg, domain.ErrRejected)
	}
	return result.OrderID, nil
}

// CancelOrder cancels a resting order. An order the exchange no longer
// knows as open counts as already cancelled.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body, err := c.do(ctx, http.MethodDelete, "/order", map[string]any{"orderID": orderID})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("polymarket/clob: cancel order %q: %w", orderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		msg := strings.ToLower(result.ErrorMsg)
		if strings.Contains(msg, "not found") || strings.Contains(msg, "already") {
			return nil
		}
		return fmt.Errorf("polymarket/clob: cancel order %q: %s", orderID, result.ErrorMsg)
	}
	return nil
}

// CancelAll cancels every open order for the wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}
	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel all: %s", result.ErrorMsg)
	}
	return nil
}

// GetOrders returns the wallet's active orders for the market. Orders on
// assets outside the configured market are skipped.
func (c *ClobClient) GetOrders(ctx context.Context, conditionID string) ([]domain.Order, error) {
	path := "/orders?market=" + url.QueryEscape(conditionID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get orders: %w", err)
	}

	var apiOrders []apiOrder
	if err := json.Unmarshal(body, &apiOrders); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(apiOrders))
	for i := range apiOrders {
		o, err := apiOrders[i].toDomain(c.market)
		if err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// GetBalances fetches collateral and both outcome token balances.
func (c *ClobClient) GetBalances(ctx context.Context) (domain.Balances, error) {
	balances := make(domain.Balances, 3)

	collateral, err := c.fetchBalance(ctx, "/balance-allowance?asset_type=COLLATERAL")
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get collateral balance: %w", err)
	}
	balances[domain.CollateralAssetID] = collateral

	for _, token := range []domain.Token{domain.TokenYes, domain.TokenNo} {
		tokenID := c.market.TokenID(token)
		path := "/balance-allowance?asset_type=CONDITIONAL&token_id=" + url.QueryEscape(tokenID)
		bal, err := c.fetchBalance(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: get %s balance: %w", token, err)
		}
		balances[tokenID] = bal
	}
	return balances, nil
}

// GetMidpoint returns the mid price for a token.
func (c *ClobClient) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	path := "/midpoint?token_id=" + url.QueryEscape(tokenID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get midpoint: %w", err)
	}
	var mid apiMidpoint
	if err := json.Unmarshal(body, &mid); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	v, err := strconv.ParseFloat(mid.Mid, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("polymarket/clob: midpoint %q: %w", mid.Mid, domain.ErrNoMarket)
	}
	return v, nil
}

// FetchMarket resolves a condition ID to its YES/NO token IDs. Used at
// startup so config only needs the condition ID.
func FetchMarket(ctx context.Context, baseURL, conditionID string) (domain.Market, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	u := strings.TrimRight(baseURL, "/") + "/markets/" + url.PathEscape(conditionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: build market request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: get market: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: read market response: %w", err)
	}
	if err := statusToError(resp.StatusCode, body); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: get market: %w", err)
	}

	var m apiMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/clob: decode market: %w", err)
	}

	var yesID, noID string
	for _, tok := range m.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			yesID = tok.TokenID
		case "no":
			noID = tok.TokenID
		}
	}
	if yesID == "" || noID == "" {
		return domain.Market{}, fmt.Errorf("polymarket/clob: market %q missing outcome tokens: %w", conditionID, domain.ErrNoMarket)
	}
	return domain.NewMarket(conditionID, yesID, noID), nil
}

func (c *ClobClient) fetchBalance(ctx context.Context, path string) (float64, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	var bal apiBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	units, err := strconv.ParseFloat(bal.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", bal.Balance, err)
	}
	return units / amountScale, nil
}

// do builds, signs, and sends a request, returning the raw response body.
func (c *ClobClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyStr string
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		// The HMAC covers the path without the query string.
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		for k, v := range c.creds.RequestHeaders(c.signer.Address().Hex(), method, signPath, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := statusToError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func statusToError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}
