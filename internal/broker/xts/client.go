// Package xts implements the order gateway against the XTS interactive
// REST API. Placement is two steps: submit, then read the order history
// back, since the submit acknowledgment alone does not distinguish an
// accepted order from one rejected downstream by risk checks.
package xts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"orderbridge/internal/model"
)

// Client is the XTS broker.Gateway.
type Client struct {
	session *Session
	client  *http.Client
	limiter *rate.Limiter
	product string
}

func New(session *Session) *Client {
	return &Client{
		session: session,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		product: "NRML",
	}
}

func (c *Client) Name() string { return "xts" }

type envelope struct {
	Type        string          `json:"type"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) Place(ctx context.Context, cmd model.OrderCommand) (model.OrderResult, error) {
	if cmd.Instrument.XTSInstrumentID == 0 || cmd.Instrument.XTSSegment == "" {
		return model.OrderResult{Status: model.StatusRejected, Message: "missing segment/instrument id"},
			fmt.Errorf("xts: %s has no segment/instrument id", cmd.Instrument.TradingSymbol)
	}

	orderType := "MARKET"
	var limitPrice float64
	if cmd.Style == model.StyleLimit {
		orderType = "LIMIT"
		limitPrice = float64(cmd.Price) / 100
	}
	product := cmd.Product
	if product == "" {
		product = c.product
	}

	body := map[string]any{
		"exchangeSegment":       cmd.Instrument.XTSSegment,
		"exchangeInstrumentID":  cmd.Instrument.XTSInstrumentID,
		"productType":           product,
		"orderType":             orderType,
		"orderSide":             string(cmd.Side),
		"timeInForce":           "DAY",
		"disclosedQuantity":     0,
		"orderQuantity":         cmd.Units,
		"limitPrice":            limitPrice,
		"stopPrice":             0,
		"orderUniqueIdentifier": "bridge",
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/interactive/orders", body, &env); err != nil {
		return model.OrderResult{Status: model.StatusUnknown, Message: err.Error()}, err
	}
	if env.Type != "success" {
		return model.OrderResult{
			Status:   model.StatusRejected,
			Message:  env.Description,
			PlacedAt: time.Now().UTC(),
		}, nil
	}

	var placed struct {
		AppOrderID int64 `json:"AppOrderID"`
	}
	if err := json.Unmarshal(env.Result, &placed); err != nil || placed.AppOrderID == 0 {
		return model.OrderResult{Status: model.StatusUnknown, Message: "unreadable placement result"}, nil
	}
	orderID := strconv.FormatInt(placed.AppOrderID, 10)

	// The submit ack only means the order entered the system; check the
	// history for a terminal rejection before reporting accepted.
	status, msg := c.checkOrderStatus(ctx, orderID)
	return model.OrderResult{
		Status:   status,
		OrderID:  orderID,
		Message:  msg,
		PlacedAt: time.Now().UTC(),
	}, nil
}

// checkOrderStatus reads the order history. Any Rejected entry makes the
// whole placement rejected; an unreadable history is unknown.
func (c *Client) checkOrderStatus(ctx context.Context, orderID string) (model.OrderStatus, string) {
	var env envelope
	path := "/interactive/orders?appOrderID=" + url.QueryEscape(orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return model.StatusUnknown, err.Error()
	}
	if env.Type != "success" {
		return model.StatusUnknown, env.Description
	}

	var history []struct {
		OrderStatus        string `json:"OrderStatus"`
		CancelRejectReason string `json:"CancelRejectReason"`
	}
	if err := json.Unmarshal(env.Result, &history); err != nil || len(history) == 0 {
		return model.StatusUnknown, "unreadable order history"
	}
	for _, h := range history {
		if h.OrderStatus == "Rejected" {
			return model.StatusRejected, h.CancelRejectReason
		}
	}
	return model.StatusAccepted, ""
}

func (c *Client) CancelPending(ctx context.Context, inst model.ResolvedInstrument) error {
	orders, err := c.dealerOrderbook(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.ExchangeInstrumentID != inst.XTSInstrumentID {
			continue
		}
		if o.OrderStatus != "New" && o.OrderStatus != "Open" && o.OrderStatus != "PendingNew" {
			continue
		}
		if err := c.cancelOrder(ctx, o.AppOrderID); err != nil {
			return err
		}
		log.Printf("[xts] cancelled pending order %d (%s)", o.AppOrderID, inst.TradingSymbol)
	}
	return nil
}

func (c *Client) Positions(ctx context.Context) ([]model.NetPosition, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/interactive/portfolio/dealerpositions?dayOrNet=NetWise", nil, &env); err != nil {
		return nil, fmt.Errorf("xts: positions: %w", err)
	}
	if env.Type != "success" {
		return nil, fmt.Errorf("xts: positions refused: %s", env.Description)
	}

	var result struct {
		PositionList []struct {
			TradingSymbol   string `json:"TradingSymbol"`
			ExchangeSegment string `json:"ExchangeSegment"`
			Quantity        string `json:"Quantity"`
		} `json:"positionList"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("xts: positions decode: %w", err)
	}

	out := make([]model.NetPosition, 0, len(result.PositionList))
	for _, p := range result.PositionList {
		qty, err := strconv.ParseInt(p.Quantity, 10, 64)
		if err != nil {
			log.Printf("[xts] skipping position with quantity %q", p.Quantity)
			continue
		}
		out = append(out, model.NetPosition{
			Key:   segmentExchange(p.ExchangeSegment) + ":" + p.TradingSymbol,
			Units: qty,
		})
	}
	return out, nil
}

func (c *Client) ExitPosition(ctx context.Context, inst model.ResolvedInstrument, units int64, _ model.OrderSide) error {
	body := map[string]any{
		"exchangeSegment":               inst.XTSSegment,
		"exchangeInstrumentID":          inst.XTSInstrumentID,
		"productType":                   c.product,
		"squareoffMode":                 "DayWise",
		"positionSquareOffQuantityType": "ExactQty",
		"squareOffQtyValue":             units,
		"blockOrderSending":             false,
		"cancelOrders":                  false,
	}
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/interactive/portfolio/squareoff", body, &env); err != nil {
		return fmt.Errorf("xts: squareoff %s: %w", inst.TradingSymbol, err)
	}
	if env.Type != "success" {
		return fmt.Errorf("xts: squareoff %s refused: %s", inst.TradingSymbol, env.Description)
	}
	return nil
}

func (c *Client) ExitAll(ctx context.Context) error {
	body := map[string]any{
		"squareoffMode":     "NetWise",
		"blockOrderSending": false,
		"cancelOrders":      true,
	}
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/interactive/portfolio/squareoffall", body, &env); err != nil {
		return fmt.Errorf("xts: squareoff all: %w", err)
	}
	if env.Type != "success" {
		return fmt.Errorf("xts: squareoff all refused: %s", env.Description)
	}
	return nil
}

func (c *Client) CancelAll(ctx context.Context) error {
	orders, err := c.dealerOrderbook(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.OrderStatus != "New" && o.OrderStatus != "Open" && o.OrderStatus != "PendingNew" {
			continue
		}
		if err := c.cancelOrder(ctx, o.AppOrderID); err != nil {
			return err
		}
	}
	return nil
}

type dealerOrder struct {
	AppOrderID           int64  `json:"AppOrderID"`
	ExchangeInstrumentID int64  `json:"ExchangeInstrumentID"`
	OrderStatus          string `json:"OrderStatus"`
}

func (c *Client) dealerOrderbook(ctx context.Context) ([]dealerOrder, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/interactive/orders/dealerorderbook", nil, &env); err != nil {
		return nil, fmt.Errorf("xts: dealer orderbook: %w", err)
	}
	if env.Type != "success" {
		return nil, fmt.Errorf("xts: dealer orderbook refused: %s", env.Description)
	}
	var orders []dealerOrder
	if err := json.Unmarshal(env.Result, &orders); err != nil {
		return nil, fmt.Errorf("xts: dealer orderbook decode: %w", err)
	}
	return orders, nil
}

func (c *Client) cancelOrder(ctx context.Context, appOrderID int64) error {
	path := "/interactive/orders?appOrderID=" + strconv.FormatInt(appOrderID, 10)
	var env envelope
	if err := c.do(ctx, http.MethodDelete, path, nil, &env); err != nil {
		return fmt.Errorf("xts: cancel %d: %w", appOrderID, err)
	}
	if env.Type != "success" {
		return fmt.Errorf("xts: cancel %d refused: %s", appOrderID, env.Description)
	}
	return nil
}

// do sends one authenticated request, retrying once after a relogin on
// an unauthorized response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		token, err := c.session.Token(ctx)
		if err != nil {
			return err
		}

		var rdr *bytes.Reader
		if body != nil {
			buf, merr := json.Marshal(body)
			if merr != nil {
				return merr
			}
			rdr = bytes.NewReader(buf)
		} else {
			rdr = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.session.creds.BaseURL+path, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", token)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			log.Println("[xts] session expired, relogging in")
			c.session.Invalidate()
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
}

// segmentExchange maps XTS segment codes back to exchange names for
// ledger keys.
func segmentExchange(segment string) string {
	switch segment {
	case "NSEFO":
		return "NSE"
	case "BSEFO":
		return "BSE"
	case "MCXFO":
		return "MCX"
	}
	return segment
}
