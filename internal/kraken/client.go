package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is the REST client for Kraken's spot API, implementing Exchange
type Client struct {
	apiKey     string
	privateKey string
	baseURL    string
	httpClient *http.Client
	nonce      int64
}

// NewClient creates a Kraken API client. The private key is the base64
// string Kraken issues alongside the API key.
func NewClient(apiKey, privateKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	return &Client{
		apiKey:     apiKey,
		privateKey: privateKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiResponse is Kraken's response envelope
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// GetBalance returns asset balances keyed by Kraken asset code
func (c *Client) GetBalance(ctx context.Context) (map[string]float64, error) {
	raw, err := c.privatePost(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return nil, err
	}

	var balances map[string]string
	if err := json.Unmarshal(raw, &balances); err != nil {
		return nil, fmt.Errorf("decoding balance response: %w", err)
	}

	out := make(map[string]float64, len(balances))
	for asset, amount := range balances {
		out[asset] = parseFloat(amount)
	}
	return out, nil
}

// tickerInfo mirrors the fields of Kraken's Ticker payload the bot uses.
// Arrays hold [today, last 24 hours]; c is [price, lot volume].
type tickerInfo struct {
	C []string `json:"c"`
	H []string `json:"h"`
	L []string `json:"l"`
	V []string `json:"v"`
}

// GetTicker returns the current ticker for a pair
func (c *Client) GetTicker(ctx context.Context, pair string) (*Ticker, error) {
	raw, err := c.publicGet(ctx, "/0/public/Ticker", url.Values{"pair": {pair}})
	if err != nil {
		return nil, err
	}

	var result map[string]tickerInfo
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding ticker response: %w", err)
	}

	// Kraken keys the result by its canonical pair name, which may differ
	// from the requested one. A single-pair request has a single entry.
	for _, info := range result {
		if len(info.C) < 1 || len(info.H) < 2 || len(info.L) < 2 || len(info.V) < 2 {
			return nil, fmt.Errorf("incomplete ticker payload for %s", pair)
		}
		return &Ticker{
			Pair:      pair,
			Last:      parseFloat(info.C[0]),
			High24h:   parseFloat(info.H[1]),
			Low24h:    parseFloat(info.L[1]),
			Volume24h: parseFloat(info.V[1]),
		}, nil
	}
	return nil, fmt.Errorf("no ticker data for %s", pair)
}

// GetOHLC returns candles for a pair at the given resolution, oldest first
func (c *Client) GetOHLC(ctx context.Context, pair string, interval Interval) ([]Candle, error) {
	params := url.Values{
		"pair":     {pair},
		"interval": {strconv.Itoa(int(interval))},
	}
	raw, err := c.publicGet(ctx, "/0/public/OHLC", params)
	if err != nil {
		return nil, err
	}

	// The result maps the canonical pair name to candle rows and carries a
	// "last" cursor alongside.
	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding OHLC response: %w", err)
	}

	for key, value := range result {
		if key == "last" {
			continue
		}
		var rows [][]interface{}
		if err := json.Unmarshal(value, &rows); err != nil {
			return nil, fmt.Errorf("decoding OHLC rows for %s: %w", pair, err)
		}

		candles := make([]Candle, 0, len(rows))
		for _, row := range rows {
			// [time, open, high, low, close, vwap, volume, count]
			if len(row) < 7 {
				continue
			}
			candles = append(candles, Candle{
				Time:   time.Unix(int64(parseFloat(row[0])), 0),
				Open:   parseFloat(row[1]),
				High:   parseFloat(row[2]),
				Low:    parseFloat(row[3]),
				Close:  parseFloat(row[4]),
				Volume: parseFloat(row[6]),
			})
		}
		return candles, nil
	}
	return nil, fmt.Errorf("no OHLC data for %s", pair)
}

// addOrderResult is Kraken's AddOrder response
type addOrderResult struct {
	TxID  []string `json:"txid"`
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
}

// PlaceOrder submits an order. The response carries an empty OrderID when
// the exchange did not return a transaction id.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	params := url.Values{
		"pair":      {req.Pair},
		"type":      {string(req.Side)},
		"ordertype": {string(req.Type)},
		"volume":    {strconv.FormatFloat(req.Volume, 'f', -1, 64)},
	}
	if req.Type == TypeLimit {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}
	if req.ClientOrderID != "" {
		params.Set("cl_ord_id", req.ClientOrderID)
	}

	raw, err := c.privatePost(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return nil, err
	}

	var result addOrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}

	resp := &OrderResponse{Description: result.Descr.Order}
	if len(result.TxID) > 0 {
		resp.OrderID = result.TxID[0]
	}
	return resp, nil
}

// CancelOrder cancels an open order by transaction id
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	raw, err := c.privatePost(ctx, "/0/private/CancelOrder", url.Values{"txid": {orderID}})
	if err != nil {
		return false, err
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fmt.Errorf("decoding cancel response: %w", err)
	}
	return result.Count > 0, nil
}

// minVolumes holds Kraken's published ordermin per pair for the pairs the
// bot trades. Unlisted pairs get a conservative default.
var minVolumes = map[string]float64{
	"XBTUSD":  0.0001,
	"ETHUSD":  0.01,
	"SOLUSD":  0.1,
	"ADAUSD":  15,
	"XRPUSD":  2.5,
	"DOTUSD":  1,
	"LINKUSD": 0.5,
}

const defaultMinVolume = 0.01

// MinOrderVolume returns the minimum tradeable volume for a pair
func (c *Client) MinOrderVolume(pair string) float64 {
	if v, ok := minVolumes[strings.ToUpper(pair)]; ok {
		return v
	}
	return defaultMinVolume
}

func (c *Client) publicGet(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	return c.do(req, path)
}

func (c *Client) privatePost(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	nonce := c.nextNonce()
	params.Set("nonce", strconv.FormatInt(nonce, 10))
	body := params.Encode()

	signature, err := c.sign(path, params.Get("nonce"), body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", signature)

	return c.do(req, path)
}

// sign computes Kraken's request signature:
// HMAC-SHA512(path + SHA256(nonce + postdata)) keyed with the decoded
// private key, base64 encoded.
func (c *Client) sign(path, nonce, body string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("decoding private key: %w", err)
	}

	sha := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) do(req *http.Request, path string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(data))
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	if len(envelope.Error) > 0 {
		return nil, fmt.Errorf("%s returned API error: %s", path, strings.Join(envelope.Error, ", "))
	}
	return envelope.Result, nil
}

// nextNonce returns a strictly increasing nonce. Kraken rejects reused or
// decreasing nonces per API key.
func (c *Client) nextNonce() int64 {
	n := time.Now().UnixMilli()
	if n <= c.nonce {
		n = c.nonce + 1
	}
	c.nonce = n
	return n
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	case json.Number:
		f, _ := val.Float64()
		return f
	default:
		return 0
	}
}
