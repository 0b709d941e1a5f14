package model

import "time"

// OrderCommand is a single order the engine wants placed. Units is the
// broker-facing quantity (lots multiplied by the contract lot size).
type OrderCommand struct {
	Instrument ResolvedInstrument `json:"instrument"`
	Side       OrderSide          `json:"side"`
	Units      int64              `json:"units"`
	Price      int64              `json:"price"` // limit price in paise, 0 for market
	Style      OrderStyle         `json:"style"`
	Product    string             `json:"product"`
}

// OrderStatus is the terminal classification of a placement attempt.
type OrderStatus string

const (
	// StatusAccepted means the broker acknowledged the order.
	StatusAccepted OrderStatus = "accepted"
	// StatusRejected means the broker definitively refused the order.
	StatusRejected OrderStatus = "rejected"
	// StatusUnknown means the outcome could not be determined (timeout,
	// unreadable response). The instrument must be reconciled before the
	// next decision against it.
	StatusUnknown OrderStatus = "unknown"
)

// OrderResult is the gateway's answer to a placement attempt.
type OrderResult struct {
	Status   OrderStatus `json:"status"`
	OrderID  string      `json:"order_id"`
	Message  string      `json:"message"`
	PlacedAt time.Time   `json:"placed_at"`
}
