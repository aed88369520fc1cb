package domain

import "fmt"

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OrderStatus is the lifecycle state of an order.
// Allowed transitions: Active -> Partial -> Filled, Active -> Filled,
// Active -> Canceled. Filled and Canceled are terminal.
type OrderStatus int

const (
	Active OrderStatus = iota
	Partial
	Filled
	Canceled
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	switch s {
	case Active:
		return "active"
	case Partial:
		return "partial"
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == Filled || s == Canceled
}

// TimeInForce is the number of steps an order stays valid. The zero value
// is good-till-canceled; negative values are malformed.
type TimeInForce int

// GoodTillCanceled marks an order that never expires on its own.
const GoodTillCanceled TimeInForce = 0

// IsBounded reports whether the order expires after a number of steps.
func (t TimeInForce) IsBounded() bool {
	return t > 0
}

// Valid reports whether t is good-till-canceled or a positive step count.
func (t TimeInForce) Valid() bool {
	return t >= 0
}

// Order is a limit request to buy or sell a quantity of an asset.
// Timestamp, Status and FilledQuantity are owned by the market that
// admitted the order.
type Order struct {
	ID          string
	AgentID     string
	Side        Side
	MarketType  MarketType
	AssetType   string
	Quantity    float64
	Price       float64
	TimeInForce TimeInForce

	Timestamp      int64
	Status         OrderStatus
	FilledQuantity float64
}

// NewOrder creates an active, good-till-canceled order.
func NewOrder(id, agentID string, side Side, marketType MarketType, assetType string, quantity, price float64) *Order {
	return &Order{
		ID:          id,
		AgentID:     agentID,
		Side:        side,
		MarketType:  marketType,
		AssetType:   assetType,
		Quantity:    quantity,
		Price:       price,
		TimeInForce: GoodTillCanceled,
	}
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsFresh reports whether the order has never been admitted or traded.
func (o *Order) IsFresh() bool {
	return o.Status == Active && o.FilledQuantity == 0
}

// IsOpen checks if the order can still trade.
func (o *Order) IsOpen() bool {
	return o.Status == Active || o.Status == Partial
}

// Fill records an execution of qty against the order. Panics if the fill
// would exceed the order quantity or touch a terminal order.
func (o *Order) Fill(qty float64) {
	if o.Status.IsTerminal() {
		panic(fmt.Sprintf("ORDER_FILL_TERMINAL: %s is %s", o.ID, o.Status))
	}
	remaining := o.Remaining()
	if qty <= 0 || qty > remaining {
		panic(fmt.Sprintf("ORDER_OVERFILL: %s fill %v, remaining %v", o.ID, qty, remaining))
	}
	if qty == remaining {
		o.FilledQuantity = o.Quantity
		o.Status = Filled
		return
	}
	o.FilledQuantity += qty
	if o.FilledQuantity >= o.Quantity {
		o.FilledQuantity = o.Quantity
		o.Status = Filled
	} else {
		o.Status = Partial
	}
}

// FillRemaining fills whatever is left and returns that quantity.
func (o *Order) FillRemaining() float64 {
	qty := o.Remaining()
	o.Fill(qty)
	return qty
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(%s, %s, %s, %s, %v, %v)", o.ID, o.AgentID, o.Side, o.AssetType, o.Quantity, o.Price)
}
