package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"orderbridge/internal/engine"
	"orderbridge/internal/model"
	"orderbridge/internal/signal"
)

// SignalHandler is what a webhook route needs from the engine.
type SignalHandler interface {
	Handle(ctx context.Context, in *model.Intent) (engine.Outcome, string)
	// ReportRejected audits and notifies a payload the normalizer
	// refused; rejections are terminal outcomes too.
	ReportRejected(ctx context.Context, parseErr error)
	ExitAllPositions(ctx context.Context) error
	CancelAllOrders(ctx context.Context) error
}

// Bodies larger than this are refused before parsing; the normalizer's
// own limit is lower.
const maxBodyBytes = 16 << 10

// webhook serves one broker's alert route.
type webhook struct {
	handler SignalHandler
}

func (wh *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Admin commands arrive as bare text on the same route and bypass
	// the decision engine.
	if done := wh.command(w, r, string(body)); done {
		return
	}

	isJSON := strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(strings.TrimSpace(string(body)), "{")

	in, err := signal.Parse(body, isJSON)
	if err != nil {
		wh.reject(r.Context(), w, err)
		return
	}

	outcome, notice := wh.handler.Handle(r.Context(), in)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(string(outcome) + ": " + notice + "\n"))
}

// command handles the out-of-band control payloads. Reports whether the
// request was consumed.
func (wh *webhook) command(w http.ResponseWriter, r *http.Request, body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "hii", "hello":
		w.Write([]byte("Hello Ji\n"))
		return true
	case "exit all":
		if err := wh.handler.ExitAllPositions(r.Context()); err != nil {
			log.Printf("[api] exit all: %v", err)
			http.Error(w, "exit all failed", http.StatusBadGateway)
			return true
		}
		w.Write([]byte("all positions squared off\n"))
		return true
	case "cancel all":
		if err := wh.handler.CancelAllOrders(r.Context()); err != nil {
			log.Printf("[api] cancel all: %v", err)
			http.Error(w, "cancel all failed", http.StatusBadGateway)
			return true
		}
		w.Write([]byte("all pending orders cancelled\n"))
		return true
	}
	return false
}

// reject maps normalizer failures to responses. Gate and format
// failures are not server errors: the webhook always answers 200-level
// to keep the alert source from retrying garbage, except unsafe
// payloads which get a hard 400. Every rejection is reported; there is
// no silent drop.
func (wh *webhook) reject(ctx context.Context, w http.ResponseWriter, err error) {
	wh.handler.ReportRejected(ctx, err)
	switch {
	case errors.Is(err, signal.ErrUnsafeContent):
		http.Error(w, "unsafe payload", http.StatusBadRequest)
	case errors.Is(err, signal.ErrUnauthorized):
		w.Write([]byte("dropped: unauthorized\n"))
	case errors.Is(err, signal.ErrInvalidFormat):
		w.Write([]byte("dropped: invalid format\n"))
	default:
		log.Printf("[api] parse: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
