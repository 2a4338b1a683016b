package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// bybit error codes the adapter cares about.
const (
	bybitCodeRateLimit     = 10006
	bybitCodeOrderNotFound = 110001
)

// BybitClient implements Client against the Bybit v5 unified trading
// API. All wire-level concerns stay inside this adapter.
type BybitClient struct {
	httpClient *bybit_api.Client
	category   string
	symbol     string
	quoteCoin  string
	retryCfg   RetryConfig
}

// NewBybitClient creates the adapter from validated configuration.
func NewBybitClient(cfg config.ExchangeConfig, quoteCoin string) *BybitClient {
	baseURL := bybit_api.MAINNET
	if cfg.Demo {
		baseURL = "https://api-demo.bybit.com"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		cfg.APIKey,
		cfg.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &BybitClient{
		httpClient: httpClient,
		category:   cfg.Category,
		symbol:     cfg.Symbol,
		quoteCoin:  quoteCoin,
		retryCfg:   DefaultRetryConfig(),
	}
}

// PlaceOrder submits an intent, translating the engine's order kinds
// into Bybit order parameters.
func (c *BybitClient) PlaceOrder(ctx context.Context, intent OrderIntent) (*Order, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.symbol,
		"side":     string(intent.Side),
		"qty":      formatQty(intent.Amount),
	}
	if intent.LinkID != "" {
		params["orderLinkId"] = intent.LinkID
	}
	if intent.ReduceOnly {
		params["reduceOnly"] = true
	}

	switch intent.Kind {
	case KindPostOnlyLimit:
		params["orderType"] = "Limit"
		params["price"] = formatPrice(intent.LimitPrice)
		params["timeInForce"] = "PostOnly"
	case KindMarket:
		params["orderType"] = "Market"
	case KindStopLimit:
		params["orderType"] = "Limit"
		params["price"] = formatPrice(intent.LimitPrice)
		params["triggerPrice"] = formatPrice(intent.TriggerPrice)
		params["triggerDirection"] = triggerDirection(intent)
	case KindNativeTakeProfit:
		params["orderType"] = "Limit"
		params["price"] = formatPrice(intent.LimitPrice)
		params["triggerPrice"] = formatPrice(intent.TriggerPrice)
		params["triggerDirection"] = triggerDirection(intent)
		params["orderFilter"] = "tpslOrder"
	default:
		return nil, errors.NewInvalidInput("exchange", "place_order", fmt.Sprintf("unknown order kind %q", intent.Kind))
	}

	var order *Order
	err := WithRetry(ctx, c.retryCfg, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
		if err != nil {
			return classifyAPIError("place_order", err)
		}
		parsed, err := c.parseOrder(result)
		if err != nil {
			return err
		}
		order = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder looks the order up among open orders first, then in order
// history once it has left the open set.
func (c *BybitClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err == nil {
		if order, found := c.findOrder(result, orderID); found {
			return order, nil
		}
	}

	result, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, classifyAPIError("get_order", err)
	}
	if order, found := c.findOrder(result, orderID); found {
		return order, nil
	}
	return nil, errors.New(errors.CategoryInternal, "exchange", "get_order", fmt.Sprintf("order %s not found", orderID))
}

// CancelOrder cancels and confirms. It returns true only after the
// venue reports the order as no longer live; callers must re-query the
// final status to detect a fill that raced the cancellation.
func (c *BybitClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.symbol,
		"orderId":  orderID,
	}

	_, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil && !isOrderGone(err) {
		return false, classifyAPIError("cancel_order", err)
	}

	// Confirm against the venue, never assume.
	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status.Terminal(), nil
}

// GetBalance returns the tradable quote-coin balance of the unified
// account.
func (c *BybitClient) GetBalance(ctx context.Context) (float64, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        c.quoteCoin,
	}

	var balance float64
	err := WithRetry(ctx, c.retryCfg, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
		if err != nil {
			return classifyAPIError("get_balance", err)
		}
		parsed, err := c.parseBalance(result)
		if err != nil {
			return err
		}
		balance = parsed
		return nil
	})
	return balance, err
}

func (c *BybitClient) parseOrder(response interface{}) (*Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, errors.New(errors.CategoryInternal, "exchange", "parse_order", "unexpected response type")
	}
	if serverResp.RetCode != 0 {
		return nil, classifyRetCode("parse_order", serverResp.RetCode, serverResp.RetMsg)
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal order result: %w", err)
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		OrderStatus string `json:"orderStatus"`
		AvgPrice    string `json:"avgPrice"`
		CumExecQty  string `json:"cumExecQty"`
		CreatedTime string `json:"createdTime"`
		UpdatedTime string `json:"updatedTime"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal order result: %w", err)
	}

	status := OrderStatus(result.OrderStatus)
	if status == "" {
		// Order placement acks carry only IDs; the order starts New.
		status = StatusNew
	}
	return &Order{
		OrderID:   result.OrderID,
		LinkID:    result.OrderLinkID,
		Status:    status,
		AvgPrice:  parseFloat(result.AvgPrice),
		FilledQty: parseFloat(result.CumExecQty),
		CreatedAt: parseTimestamp(result.CreatedTime),
		UpdatedAt: parseTimestamp(result.UpdatedTime),
	}, nil
}

func (c *BybitClient) findOrder(response interface{}, orderID string) (*Order, bool) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok || serverResp.RetCode != 0 {
		return nil, false
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, false
	}

	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			OrderStatus string `json:"orderStatus"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
			CreatedTime string `json:"createdTime"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}

	for _, item := range result.List {
		if item.OrderID == orderID {
			return &Order{
				OrderID:   item.OrderID,
				LinkID:    item.OrderLinkID,
				Status:    OrderStatus(item.OrderStatus),
				AvgPrice:  parseFloat(item.AvgPrice),
				FilledQty: parseFloat(item.CumExecQty),
				CreatedAt: parseTimestamp(item.CreatedTime),
				UpdatedAt: parseTimestamp(item.UpdatedTime),
			}, true
		}
	}
	return nil, false
}

func (c *BybitClient) parseBalance(response interface{}) (float64, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return 0, errors.New(errors.CategoryInternal, "exchange", "parse_balance", "unexpected response type")
	}
	if serverResp.RetCode != 0 {
		return 0, classifyRetCode("parse_balance", serverResp.RetCode, serverResp.RetMsg)
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("marshal balance result: %w", err)
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				WalletBalance       string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("unmarshal balance result: %w", err)
	}

	for _, account := range result.List {
		for _, coin := range account.Coin {
			if coin.Coin == c.quoteCoin {
				if available := parseFloat(coin.AvailableToWithdraw); available > 0 {
					return available, nil
				}
				return parseFloat(coin.WalletBalance), nil
			}
		}
	}
	return 0, errors.New(errors.CategoryInternal, "exchange", "parse_balance", fmt.Sprintf("coin %s not found in wallet", c.quoteCoin))
}

// GetOrderBook fetches the top of book for the configured symbol.
func (c *BybitClient) GetOrderBook(ctx context.Context) (types.OrderBookSnapshot, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   c.symbol,
		"limit":    1,
	}

	var book types.OrderBookSnapshot
	err := WithRetry(ctx, c.retryCfg, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
		if err != nil {
			return classifyAPIError("get_order_book", err)
		}
		parsed, err := c.parseOrderBook(result)
		if err != nil {
			return err
		}
		book = parsed
		return nil
	})
	return book, err
}

func (c *BybitClient) parseOrderBook(response interface{}) (types.OrderBookSnapshot, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return types.OrderBookSnapshot{}, errors.New(errors.CategoryInternal, "exchange", "parse_order_book", "unexpected response type")
	}
	if serverResp.RetCode != 0 {
		return types.OrderBookSnapshot{}, classifyRetCode("parse_order_book", serverResp.RetCode, serverResp.RetMsg)
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("marshal order book result: %w", err)
	}

	var result struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
		Ts   int64      `json:"ts"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("unmarshal order book result: %w", err)
	}
	if len(result.Bids) == 0 || len(result.Asks) == 0 ||
		len(result.Bids[0]) < 2 || len(result.Asks[0]) < 2 {
		return types.OrderBookSnapshot{}, errors.New(errors.CategoryTransientExchange, "exchange", "parse_order_book", "empty order book")
	}

	return types.OrderBookSnapshot{
		BestBid:   parseFloat(result.Bids[0][0]),
		BestAsk:   parseFloat(result.Asks[0][0]),
		BidVolume: parseFloat(result.Bids[0][1]),
		AskVolume: parseFloat(result.Asks[0][1]),
		Timestamp: time.UnixMilli(result.Ts),
	}, nil
}

// triggerDirection maps the intent to Bybit's trigger direction enum:
// 1 triggers when price rises to triggerPrice, 2 when it falls. A
// stop-loss waits on the losing side of the position and a take-profit
// on the winning side, so the order kind and close side fix the
// direction without consulting the mark price.
func triggerDirection(intent OrderIntent) int {
	closingLong := intent.Side == OrderSideSell
	if intent.Kind == KindStopLimit {
		if closingLong {
			return 2
		}
		return 1
	}
	// Native take-profit.
	if closingLong {
		return 1
	}
	return 2
}

func classifyAPIError(operation string, err error) error {
	return errors.Wrap(err, errors.CategoryOf(err), "exchange", operation)
}

func classifyRetCode(operation string, code int, msg string) error {
	category := errors.CategoryInternal
	if code == bybitCodeRateLimit || code >= 500 {
		category = errors.CategoryTransientExchange
	}
	return errors.New(category, "exchange", operation, fmt.Sprintf("api error %d: %s", code, msg))
}

// isOrderGone reports whether a cancel failed because the order
// already left the book.
func isOrderGone(err error) bool {
	return err != nil && strings.Contains(err.Error(), strconv.Itoa(bybitCodeOrderNotFound))
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseTimestamp(ms string) time.Time {
	if ms == "" {
		return time.Time{}
	}
	value, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(value)
}
