// Package domain defines the point-of-sale entities shared by every layer:
// dining sessions, orders, order items, payments and session events.
//
// Money is carried as decimal.Decimal and serialised as a JSON string so
// totals never pass through binary floating point.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a dining session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// ItemStatus is the kitchen status of an order item.
//
// Statuses only move forward: pending, preparing, ready, served.
// Void and refire are recorded as timestamps, not statuses.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
)

var itemRank = map[ItemStatus]int{
	ItemPending:   0,
	ItemPreparing: 1,
	ItemReady:     2,
	ItemServed:    3,
}

// Rank returns the position of s in the forward-only lifecycle, or -1 for
// an unknown status.
func (s ItemStatus) Rank() int {
	r, ok := itemRank[s]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	return s.Rank() >= 0
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderType distinguishes table-service orders from counter orders.
type OrderType string

const (
	OrderDineIn  OrderType = "dine_in"
	OrderTakeout OrderType = "takeout"
	OrderBar     OrderType = "bar"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderDineIn, OrderTakeout, OrderBar:
		return true
	}
	return false
}

// PaymentStatus is the lifecycle state of a single payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// OrderPaymentStatus summarises how much of an order has been paid.
type OrderPaymentStatus string

const (
	OrderUnpaid  OrderPaymentStatus = "unpaid"
	OrderPartial OrderPaymentStatus = "partial"
	OrderPaid    OrderPaymentStatus = "paid"
)

// EventSource names the surface that produced a session event.
type EventSource string

const (
	SourceTablePage EventSource = "table_page"
	SourceKDS       EventSource = "kds"
	SourceSystem    EventSource = "system"
	SourceAPI       EventSource = "api"
)

// Valid reports whether s is a known event source.
func (s EventSource) Valid() bool {
	switch s {
	case SourceTablePage, SourceKDS, SourceSystem, SourceAPI:
		return true
	}
	return false
}

// Event types written by the engine.
const (
	EventSessionOpened    = "session_opened"
	EventSessionClosed    = "session_closed"
	EventWaveFired        = "wave_fired"
	EventItemReady        = "item_ready"
	EventItemServed       = "served"
	EventItemVoided       = "item_voided"
	EventItemRefired      = "item_refired"
	EventOrderCancelled   = "order_cancelled"
	EventPaymentRecorded  = "payment_recorded"
	EventPaymentCompleted = "payment_completed"
	EventPaymentRefunded  = "payment_refunded"
)

// Location is a restaurant belonging to a merchant.
type Location struct {
	ID                string          `json:"id" yaml:"id"`
	MerchantID        string          `json:"merchant_id" yaml:"merchant_id"`
	Name              string          `json:"name" yaml:"name"`
	TaxRate           decimal.Decimal `json:"tax_rate" yaml:"tax_rate"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate" yaml:"service_charge_rate"`
}

// Table is a physical table at a location.
type Table struct {
	ID         string `json:"id" yaml:"id"`
	LocationID string `json:"location_id" yaml:"location_id"`
	Label      string `json:"label" yaml:"label"`
}

// MenuItem is a sellable item at a location.
type MenuItem struct {
	ID         string          `json:"id" yaml:"id"`
	LocationID string          `json:"location_id" yaml:"location_id"`
	Name       string          `json:"name" yaml:"name"`
	Price      decimal.Decimal `json:"price" yaml:"price"`
	Station    string          `json:"station" yaml:"station"`
	Inactive   bool            `json:"inactive,omitempty" yaml:"inactive"`
}

// Session is one party's occupancy of a table, from seating to close.
// At most one open session exists per table.
type Session struct {
	ID         string        `json:"id"`
	LocationID string        `json:"location_id"`
	TableID    string        `json:"table_id"`
	ServerID   string        `json:"server_id"`
	Status     SessionStatus `json:"status"`
	GuestCount int           `json:"guest_count"`
	OpenedAt   time.Time     `json:"opened_at"`
	ClosedAt   *time.Time    `json:"closed_at,omitempty"`
}

// Open reports whether the session still accepts items.
func (s Session) Open() bool {
	return s.Status == SessionOpen
}

// Order is a ticket within a session (or a standalone counter order when
// SessionID is nil). Each session order carries its course wave number.
type Order struct {
	ID                string             `json:"id"`
	SessionID         *string            `json:"session_id,omitempty"`
	LocationID        string             `json:"location_id"`
	Status            OrderStatus        `json:"status"`
	Type              OrderType          `json:"order_type"`
	Station           string             `json:"station,omitempty"`
	Wave              int                `json:"wave"`
	FiredAt           *time.Time         `json:"fired_at,omitempty"`
	TaxRate           decimal.Decimal    `json:"tax_rate"`
	ServiceChargeRate decimal.Decimal    `json:"service_charge_rate"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	Tax               decimal.Decimal    `json:"tax"`
	ServiceCharge     decimal.Decimal    `json:"service_charge"`
	Tip               decimal.Decimal    `json:"tip"`
	Discount          decimal.Decimal    `json:"discount"`
	Total             decimal.Decimal    `json:"total"`
	PaymentStatus     OrderPaymentStatus `json:"payment_status"`
	CreatedAt         time.Time          `json:"created_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	CancelledAt       *time.Time         `json:"cancelled_at,omitempty"`
}

// Fired reports whether the order's wave has been sent to the kitchen.
func (o Order) Fired() bool {
	return o.FiredAt != nil
}

// Cancelled reports whether the order was cancelled before firing.
func (o Order) Cancelled() bool {
	return o.Status == OrderCancelled
}

// Customization is a modifier applied to an order item.
type Customization struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderItem is a line on an order.
type OrderItem struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	MenuItemID          string          `json:"menu_item_id"`
	Name                string          `json:"name"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int             `json:"quantity"`
	Customizations      []Customization `json:"customizations"`
	CustomizationsTotal decimal.Decimal `json:"customizations_total"`
	LineTotal           decimal.Decimal `json:"line_total"`
	Notes               string          `json:"notes,omitempty"`
	Status              ItemStatus      `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	SentToKitchenAt     *time.Time      `json:"sent_to_kitchen_at,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	ReadyAt             *time.Time      `json:"ready_at,omitempty"`
	ServedAt            *time.Time      `json:"served_at,omitempty"`
	VoidedAt            *time.Time      `json:"voided_at,omitempty"`
	VoidReason          string          `json:"void_reason,omitempty"`
	RefiredAt           *time.Time      `json:"refired_at,omitempty"`
	RefireReason        string          `json:"refire_reason,omitempty"`
}

// Voided reports whether the item has been voided.
func (i OrderItem) Voided() bool {
	return i.VoidedAt != nil
}

// Sent reports whether the item has been sent to the kitchen.
func (i OrderItem) Sent() bool {
	return i.SentToKitchenAt != nil
}

// Payment is a single tender against an order.
type Payment struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	SessionID   *string         `json:"session_id,omitempty"`
	LocationID  string          `json:"location_id"`
	Amount      decimal.Decimal `json:"amount"`
	TipAmount   decimal.Decimal `json:"tip_amount"`
	Status      PaymentStatus   `json:"status"`
	Method      string          `json:"method"`
	Provider    string          `json:"provider,omitempty"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	RefundedAt  *time.Time      `json:"refunded_at,omitempty"`
}

// Collected returns amount plus tip.
func (p Payment) Collected() decimal.Decimal {
	return p.Amount.Add(p.TipAmount)
}

// SessionEvent is one entry in a session's append-only audit stream.
// Seq is assigned by the store and strictly increases across all sessions.
type SessionEvent struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	SessionID  string          `json:"session_id"`
	LocationID string          `json:"location_id"`
	Type       string          `json:"type"`
	Source     EventSource     `json:"source"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IdempotencyRecord stores the outcome of a mutating request so retries
// with the same key can be answered without re-executing.
type IdempotencyRecord struct {
	Key         string
	UserID      string
	Route       string
	RequestHash string
	Response    []byte
	CreatedAt   time.Time
}
