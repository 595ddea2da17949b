package ibgateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// Client talks to the broker gateway sidecar over HTTP. The sidecar owns the
// TWS session (connection handshake, contract qualification, market data
// subscriptions); this client only shuttles requests and responses.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// Compile-time check that Client implements domain.BrokerGateway
var _ domain.BrokerGateway = (*Client)(nil)

// ServiceResponse is the standard gateway response envelope
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// NewClient creates a new broker gateway client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "ibgateway").Logger(),
	}
}

// post makes a POST request to the gateway
func (c *Client) post(endpoint string, request interface{}) (*ServiceResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.Post(c.baseURL+endpoint, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// get makes a GET request to the gateway
func (c *Client) get(endpoint string) (*ServiceResponse, error) {
	resp, err := c.client.Get(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the gateway response envelope
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		return &result, fmt.Errorf("gateway error: %s", errMsg)
	}

	return &result, nil
}

// ResolveInstrument qualifies a symbol into a broker contract reference
func (c *Client) ResolveInstrument(symbol string) (*domain.InstrumentRef, error) {
	resp, err := c.post("/instruments/resolve", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instrument %s: %w", symbol, err)
	}

	var ref domain.InstrumentRef
	if err := json.Unmarshal(resp.Data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse instrument: %w", err)
	}

	return &ref, nil
}

// submitOrderRequest is the request for placing an order
type submitOrderRequest struct {
	ContractID int64  `json:"contract_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Quantity   int    `json:"quantity"`
	OrderType  string `json:"order_type"`
}

// submitOrderResult is the result of placing an order
type submitOrderResult struct {
	OrderID string `json:"order_id"`
}

// SubmitOrder places an order and returns a handle for polling
func (c *Client) SubmitOrder(ref domain.InstrumentRef, intent domain.OrderIntent) (*domain.TradeHandle, error) {
	req := submitOrderRequest{
		ContractID: ref.ContractID,
		Symbol:     intent.Symbol,
		Side:       string(intent.Side),
		Quantity:   intent.Quantity,
		OrderType:  intent.OrderType,
	}

	resp, err := c.post("/orders", req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit order for %s: %w", intent.Symbol, err)
	}

	var result submitOrderResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse order result: %w", err)
	}

	c.log.Info().
		Str("order_id", result.OrderID).
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Int("quantity", intent.Quantity).
		Str("order_type", intent.OrderType).
		Msg("Order submitted")

	return &domain.TradeHandle{OrderID: result.OrderID, Intent: intent}, nil
}

// CancelOrder cancels a previously submitted order
func (c *Client) CancelOrder(handle *domain.TradeHandle) error {
	_, err := c.post("/orders/"+url.PathEscape(handle.OrderID)+"/cancel", struct{}{})
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", handle.OrderID, err)
	}

	c.log.Info().Str("order_id", handle.OrderID).Msg("Order cancelled")
	return nil
}

// PollStatus fetches the current status of a submitted order
func (c *Client) PollStatus(handle *domain.TradeHandle) (*domain.OrderStatus, error) {
	resp, err := c.get("/orders/" + url.PathEscape(handle.OrderID) + "/status")
	if err != nil {
		return nil, fmt.Errorf("failed to poll order %s: %w", handle.OrderID, err)
	}

	var status domain.OrderStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse order status: %w", err)
	}

	return &status, nil
}

// GetAccounts lists the accounts visible to the gateway session
func (c *Client) GetAccounts() ([]string, error) {
	resp, err := c.get("/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}

	var accounts []string
	if err := json.Unmarshal(resp.Data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}

	return accounts, nil
}

// accountValueResult is the response for an account value lookup
type accountValueResult struct {
	Account string  `json:"account"`
	Tag     string  `json:"tag"`
	Value   float64 `json:"value"`
}

// GetAccountValue fetches a single tagged account value (e.g. NetLiquidation)
func (c *Client) GetAccountValue(account, tag string) (float64, error) {
	endpoint := fmt.Sprintf("/accounts/%s/values/%s", url.PathEscape(account), url.PathEscape(tag))
	resp, err := c.get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to get account value %s/%s: %w", account, tag, err)
	}

	var result accountValueResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return 0, fmt.Errorf("failed to parse account value: %w", err)
	}

	return result.Value, nil
}

// GetPositions fetches the open positions for an account
func (c *Client) GetPositions(account string) ([]domain.Position, error) {
	resp, err := c.get("/accounts/" + url.PathEscape(account) + "/positions")
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	var positions []domain.Position
	if err := json.Unmarshal(resp.Data, &positions); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}

	return positions, nil
}

// lastPriceResult is the response for a last price lookup
type lastPriceResult struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// GetLastPrice fetches the most recent price for an instrument
func (c *Client) GetLastPrice(ref domain.InstrumentRef) (float64, error) {
	resp, err := c.get("/quotes/" + url.PathEscape(ref.Symbol) + "/last")
	if err != nil {
		return 0, fmt.Errorf("failed to get last price for %s: %w", ref.Symbol, err)
	}

	var result lastPriceResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return 0, fmt.Errorf("failed to parse last price: %w", err)
	}

	return result.Price, nil
}

// historicalRequest is the request for daily historical bars
type historicalRequest struct {
	ContractID int64  `json:"contract_id"`
	Symbol     string `json:"symbol"`
	Days       int    `json:"days"`
}

// historicalBar is a single bar in a historical response
type historicalBar struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// GetHistoricalDailyBars fetches an ordered daily close series for an
// instrument covering the requested number of calendar days
func (c *Client) GetHistoricalDailyBars(ref domain.InstrumentRef, days int) ([]domain.DailyBar, error) {
	req := historicalRequest{
		ContractID: ref.ContractID,
		Symbol:     ref.Symbol,
		Days:       days,
	}

	resp, err := c.post("/historical/daily", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical bars for %s: %w", ref.Symbol, err)
	}

	var raw []historicalBar
	if err := json.Unmarshal(resp.Data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse historical bars: %w", err)
	}

	bars := make([]domain.DailyBar, 0, len(raw))
	for _, b := range raw {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bar date %q: %w", b.Date, err)
		}
		bars = append(bars, domain.DailyBar{Date: date, Close: b.Close})
	}

	return bars, nil
}

// IsConnected reports whether the gateway has a live brokerage session
func (c *Client) IsConnected() bool {
	resp, err := c.get("/health")
	if err != nil {
		return false
	}

	var health struct {
		Connected bool `json:"connected"`
	}
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		return false
	}

	return health.Connected
}
