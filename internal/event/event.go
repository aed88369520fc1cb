package event

import "market_sim/internal/domain"

// Type identifies an event kind.
type Type string

const (
	TypeSubmitOrder Type = "SUBMIT_ORDER"
	TypeCancelOrder Type = "CANCEL_ORDER"
	TypeStep        Type = "STEP"
)

// Event is anything the sequencer consumes. Seq must be gap-free.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// Publishable is an event whose sequence number is assigned on publish.
type Publishable interface {
	Event
	SetSeq(seq uint64, ts int64)
}

// BaseEvent carries the sequence number and wall-clock timestamp
// (unix microseconds) assigned on publish.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (e *BaseEvent) GetSeq() uint64 { return e.Seq }
func (e *BaseEvent) GetTs() int64   { return e.Ts }

// SetSeq stamps the event on publish.
func (e *BaseEvent) SetSeq(seq uint64, ts int64) {
	e.Seq = seq
	e.Ts = ts
}

// SubmitOrderEvent routes an order to a market. If Reply is non-nil it
// receives whether the market admitted the order.
type SubmitOrderEvent struct {
	BaseEvent
	MarketID string        `json:"market_id"`
	Order    *domain.Order `json:"order"`
	Reply    chan<- bool   `json:"-"`
}

func (e *SubmitOrderEvent) GetType() Type { return TypeSubmitOrder }

// CancelOrderEvent cancels a resting order.
type CancelOrderEvent struct {
	BaseEvent
	MarketID string      `json:"market_id"`
	OrderID  string      `json:"order_id"`
	Reply    chan<- bool `json:"-"`
}

func (e *CancelOrderEvent) GetType() Type { return TypeCancelOrder }

// StepEvent advances every market by one time step.
type StepEvent struct {
	BaseEvent
}

func (e *StepEvent) GetType() Type { return TypeStep }
