// Package fyers implements the order gateway against the Fyers v3 REST
// API, with an automated TOTP login session and an order-update stream.
package fyers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"orderbridge/internal/model"
)

// Order type codes per the v3 API.
const (
	orderTypeLimit  = 1
	orderTypeMarket = 2

	sideBuy  = 1
	sideSell = -1

	// Orderbook status code for pending (open) orders.
	statusPending = 6
)

// Client is the Fyers broker.Gateway.
type Client struct {
	session *Session
	client  *http.Client
	limiter *rate.Limiter
	product string
}

// New builds a gateway over an authenticated session. The limiter keeps
// inside the documented 10 req/s per-app ceiling.
func New(session *Session) *Client {
	return &Client{
		session: session,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(8), 8),
		product: "MARGIN",
	}
}

func (c *Client) Name() string { return "fyers" }

// apiResponse is the common envelope: s is "ok" or "error".
type apiResponse struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (c *Client) Place(ctx context.Context, cmd model.OrderCommand) (model.OrderResult, error) {
	otype := orderTypeMarket
	var limitPrice float64
	if cmd.Style == model.StyleLimit {
		otype = orderTypeLimit
		limitPrice = float64(cmd.Price) / 100
	}
	side := sideBuy
	if cmd.Side == model.SideSell {
		side = sideSell
	}
	product := cmd.Product
	if product == "" {
		product = c.product
	}

	body := map[string]any{
		"symbol":       exchangeSymbol(cmd.Instrument),
		"qty":          cmd.Units,
		"type":         otype,
		"side":         side,
		"productType":  product,
		"limitPrice":   limitPrice,
		"stopPrice":    0,
		"validity":     "DAY",
		"disclosedQty": 0,
		"offlineOrder": false,
	}

	var resp apiResponse
	if err := c.do(ctx, http.MethodPost, "/orders/sync", body, &resp); err != nil {
		return model.OrderResult{Status: model.StatusUnknown, Message: err.Error()}, err
	}
	res := model.OrderResult{
		OrderID:  resp.ID,
		Message:  resp.Message,
		PlacedAt: time.Now().UTC(),
	}
	switch resp.S {
	case "ok":
		res.Status = model.StatusAccepted
	case "error":
		res.Status = model.StatusRejected
	default:
		res.Status = model.StatusUnknown
	}
	return res, nil
}

func (c *Client) CancelPending(ctx context.Context, inst model.ResolvedInstrument) error {
	var book struct {
		apiResponse
		OrderBook []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Status int    `json:"status"`
		} `json:"orderBook"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &book); err != nil {
		return fmt.Errorf("fyers: orderbook: %w", err)
	}

	symbol := exchangeSymbol(inst)
	for _, o := range book.OrderBook {
		if o.Status != statusPending || o.Symbol != symbol {
			continue
		}
		var resp apiResponse
		if err := c.do(ctx, http.MethodDelete, "/orders/sync", map[string]any{"id": o.ID}, &resp); err != nil {
			return fmt.Errorf("fyers: cancel %s: %w", o.ID, err)
		}
		log.Printf("[fyers] cancelled pending order %s (%s)", o.ID, symbol)
	}
	return nil
}

func (c *Client) Positions(ctx context.Context) ([]model.NetPosition, error) {
	var resp struct {
		apiResponse
		NetPositions []struct {
			Symbol string `json:"symbol"`
			NetQty int64  `json:"netQty"`
		} `json:"netPositions"`
	}
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("fyers: positions: %w", err)
	}
	out := make([]model.NetPosition, 0, len(resp.NetPositions))
	for _, p := range resp.NetPositions {
		// Broker symbols are already in the "EXCH:SYMBOL" ledger key form.
		out = append(out, model.NetPosition{Key: p.Symbol, Units: p.NetQty})
	}
	return out, nil
}

// ExitPosition has no dedicated endpoint on this API; it is an opposing
// market order.
func (c *Client) ExitPosition(ctx context.Context, inst model.ResolvedInstrument, units int64, side model.OrderSide) error {
	res, err := c.Place(ctx, model.OrderCommand{
		Instrument: inst,
		Side:       side,
		Units:      units,
		Style:      model.StyleMarket,
	})
	if err != nil {
		return fmt.Errorf("fyers: exit %s: %w", inst.TradingSymbol, err)
	}
	if res.Status == model.StatusRejected {
		return fmt.Errorf("fyers: exit %s rejected: %s", inst.TradingSymbol, res.Message)
	}
	return nil
}

func (c *Client) ExitAll(ctx context.Context) error {
	var resp apiResponse
	if err := c.do(ctx, http.MethodDelete, "/positions", map[string]any{"exit_all": 1}, &resp); err != nil {
		return fmt.Errorf("fyers: exit all: %w", err)
	}
	if resp.S == "error" {
		return fmt.Errorf("fyers: exit all refused: %s", resp.Message)
	}
	return nil
}

func (c *Client) CancelAll(ctx context.Context) error {
	var book struct {
		apiResponse
		OrderBook []struct {
			ID     string `json:"id"`
			Status int    `json:"status"`
		} `json:"orderBook"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &book); err != nil {
		return fmt.Errorf("fyers: orderbook: %w", err)
	}
	for _, o := range book.OrderBook {
		if o.Status != statusPending {
			continue
		}
		var resp apiResponse
		if err := c.do(ctx, http.MethodDelete, "/orders/sync", map[string]any{"id": o.ID}, &resp); err != nil {
			return fmt.Errorf("fyers: cancel %s: %w", o.ID, err)
		}
	}
	return nil
}

// do sends one authenticated request, retrying once on a 401 after a
// forced relogin.
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
		req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", c.session.creds.AppID+":"+token)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			log.Println("[fyers] token expired, relogging in")
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

// exchangeSymbol renders the broker symbol form, "NSE:BANKNIFTY24N1352500CE".
func exchangeSymbol(inst model.ResolvedInstrument) string {
	return string(inst.Exchange) + ":" + inst.TradingSymbol
}
