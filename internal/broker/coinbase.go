package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillm/powertrader/internal/domain"
)

// CoinbaseClient — REST-клиент Advanced Trade API.
// Все суммы и количества API отдает строками.
type CoinbaseClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

type bestBidAskResponse struct {
	Pricebooks []struct {
		ProductID string `json:"product_id"`
		Bids      []struct {
			Price string `json:"price"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
		} `json:"asks"`
	} `json:"pricebooks"`
}

type accountsResponse struct {
	Accounts []struct {
		Currency         string `json:"currency"`
		AvailableBalance struct {
			Value string `json:"value"`
		} `json:"available_balance"`
	} `json:"accounts"`
	HasNext bool   `json:"has_next"`
	Cursor  string `json:"cursor"`
}

type createOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID string `json:"order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error        string `json:"error"`
		ErrorDetails string `json:"error_details"`
	} `json:"error_response"`
}

type getOrderResponse struct {
	Order struct {
		OrderID            string `json:"order_id"`
		Status             string `json:"status"`
		FilledSize         string `json:"filled_size"`
		AverageFilledPrice string `json:"average_filled_price"`
		TotalFees          string `json:"total_fees"`
		CreatedTime        string `json:"created_time"`
	} `json:"order"`
}

// NewCoinbaseClient создает клиент с локальным лимитом частоты запросов
func NewCoinbaseClient(apiKey, apiSecret, baseURL string, requestsPerSecond float64) *CoinbaseClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &CoinbaseClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

// GetPrices получает лучшие bid/ask по списку торговых пар
func (c *CoinbaseClient) GetPrices(ctx context.Context, products []string) (map[string]Quote, error) {
	if len(products) == 0 {
		return map[string]Quote{}, nil
	}

	q := url.Values{}
	for _, p := range products {
		q.Add("product_ids", p)
	}
	path := "/api/v3/brokerage/best_bid_ask"

	body, err := c.do(ctx, http.MethodGet, path, q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp bestBidAskResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pricebook response: %w", err)
	}

	quotes := make(map[string]Quote, len(resp.Pricebooks))
	for _, pb := range resp.Pricebooks {
		if len(pb.Bids) == 0 || len(pb.Asks) == 0 {
			continue
		}
		bid, errB := strconv.ParseFloat(pb.Bids[0].Price, 64)
		ask, errA := strconv.ParseFloat(pb.Asks[0].Price, 64)
		if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
			continue
		}
		quotes[pb.ProductID] = Quote{Bid: bid, Ask: ask}
	}
	return quotes, nil
}

// GetHoldings возвращает ненулевые остатки всех криптоактивов
func (c *CoinbaseClient) GetHoldings(ctx context.Context) ([]Holding, error) {
	accounts, err := c.listAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var holdings []Holding
	for currency, qty := range accounts {
		if currency == domain.QuoteCurrency || qty <= 0 {
			continue
		}
		holdings = append(holdings, Holding{Symbol: currency, Quantity: qty})
	}
	return holdings, nil
}

// GetBuyingPower возвращает доступный остаток USD
func (c *CoinbaseClient) GetBuyingPower(ctx context.Context) (float64, error) {
	accounts, err := c.listAccounts(ctx)
	if err != nil {
		return 0, err
	}
	return accounts[domain.QuoteCurrency], nil
}

// PlaceBuy размещает рыночную покупку на сумму в USD
func (c *CoinbaseClient) PlaceBuy(ctx context.Context, product string, usdAmount float64, clientID string) (string, error) {
	payload := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      product,
		"side":            "BUY",
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]string{
				"quote_size": fmt.Sprintf("%.2f", usdAmount),
			},
		},
	}
	return c.createOrder(ctx, payload)
}

// PlaceSell размещает рыночную продажу указанного количества
func (c *CoinbaseClient) PlaceSell(ctx context.Context, product string, quantity float64, clientID string) (string, error) {
	payload := map[string]interface{}{
		"client_order_id": clientID,
		"product_id":      product,
		"side":            "SELL",
		"order_configuration": map[string]interface{}{
			"market_market_ioc": map[string]string{
				"base_size": strconv.FormatFloat(quantity, 'f', -1, 64),
			},
		},
	}
	return c.createOrder(ctx, payload)
}

// GetOrder возвращает нормализованное состояние ордера
func (c *CoinbaseClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	path := "/api/v3/brokerage/orders/historical/" + orderID

	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var resp getOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order response: %w", err)
	}
	if resp.Order.OrderID == "" {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	order := &Order{
		ID:        resp.Order.OrderID,
		Status:    normalizeStatus(resp.Order.Status),
		FilledQty: parseFloatOrZero(resp.Order.FilledSize),
		AvgPrice:  parseFloatOrZero(resp.Order.AverageFilledPrice),
		FeesUSD:   parseFloatOrZero(resp.Order.TotalFees),
	}
	if t, err := time.Parse(time.RFC3339, resp.Order.CreatedTime); err == nil {
		order.CreatedAt = t
	}
	return order, nil
}

func (c *CoinbaseClient) createOrder(ctx context.Context, payload map[string]interface{}) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders", "", payload)
	if err != nil {
		return "", err
	}

	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal order response: %w", err)
	}
	if !resp.Success || resp.SuccessResponse.OrderID == "" {
		return "", fmt.Errorf("%w: %s %s", domain.ErrExchangeAPI,
			resp.ErrorResponse.Error, resp.ErrorResponse.ErrorDetails)
	}
	return resp.SuccessResponse.OrderID, nil
}

// listAccounts собирает остатки по всем валютам, следуя пагинации
func (c *CoinbaseClient) listAccounts(ctx context.Context) (map[string]float64, error) {
	balances := make(map[string]float64)
	cursor := ""

	for {
		q := url.Values{}
		q.Set("limit", "250")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/accounts", q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var resp accountsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accounts response: %w", err)
		}

		for _, acct := range resp.Accounts {
			currency := strings.ToUpper(acct.Currency)
			balances[currency] += parseFloatOrZero(acct.AvailableBalance.Value)
		}

		if !resp.HasNext || resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	return balances, nil
}

// do выполняет подписанный запрос с учетом лимита частоты
func (c *CoinbaseClient) do(ctx context.Context, method, path, query string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	c.setAuthHeaders(req, timestamp, method, path, string(bodyBytes))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrExchangeAPI, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// generateSignature подписывает timestamp+method+path+body ключом API
func (c *CoinbaseClient) generateSignature(timestamp, method, path, body string) string {
	message := timestamp + method + path + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// setAuthHeaders устанавливает заголовки авторизации для запроса
func (c *CoinbaseClient) setAuthHeaders(req *http.Request, timestamp, method, path, body string) {
	req.Header.Set("CB-ACCESS-KEY", c.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", c.generateSignature(timestamp, method, path, body))
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
}

// normalizeStatus приводит статус Coinbase к внутреннему набору
func normalizeStatus(status string) string {
	switch strings.ToUpper(status) {
	case "FILLED":
		return domain.StatusFilled
	case "CANCELLED", "CANCELED", "CANCEL_QUEUED":
		return domain.StatusCancelled
	case "REJECTED":
		return domain.StatusRejected
	case "EXPIRED":
		return domain.StatusExpired
	case "FAILED":
		return domain.StatusFailed
	case "OPEN", "PENDING", "QUEUED", "UNKNOWN_ORDER_STATUS":
		return domain.StatusPending
	}
	return domain.StatusPending
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
