package event

import (
	"sync"
)

// EventPool provides sync.Pool for the high-frequency order events.
// Use this to reduce GC pressure when agents flood the sequencer.
//
// Usage:
//
//	ev := AcquireSubmitOrderEvent()
//	ev.MarketID = "wheat"
//	// ... publish and process ...
//	ReleaseSubmitOrderEvent(ev)  // Return to pool after processing
var submitOrderPool = sync.Pool{
	New: func() interface{} {
		return &SubmitOrderEvent{}
	},
}

// AcquireSubmitOrderEvent gets a SubmitOrderEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireSubmitOrderEvent() *SubmitOrderEvent {
	return submitOrderPool.Get().(*SubmitOrderEvent)
}

// ReleaseSubmitOrderEvent returns a SubmitOrderEvent to the pool.
// The event is reset to zero values before being pooled. The order
// itself is not pooled; the market keeps a reference to it.
func ReleaseSubmitOrderEvent(ev *SubmitOrderEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.MarketID = ""
	ev.Order = nil
	ev.Reply = nil

	submitOrderPool.Put(ev)
}

// CancelOrderEvent pool
var cancelOrderPool = sync.Pool{
	New: func() interface{} {
		return &CancelOrderEvent{}
	},
}

// AcquireCancelOrderEvent gets a CancelOrderEvent from the pool.
func AcquireCancelOrderEvent() *CancelOrderEvent {
	return cancelOrderPool.Get().(*CancelOrderEvent)
}

// ReleaseCancelOrderEvent returns a CancelOrderEvent to the pool.
func ReleaseCancelOrderEvent(ev *CancelOrderEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.MarketID = ""
	ev.OrderID = ""
	ev.Reply = nil

	cancelOrderPool.Put(ev)
}

// Release returns pooled event kinds to their pool and ignores the rest.
func Release(ev Event) {
	switch e := ev.(type) {
	case *SubmitOrderEvent:
		ReleaseSubmitOrderEvent(e)
	case *CancelOrderEvent:
		ReleaseCancelOrderEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
// It acquires and releases a batch of events.
func Warmup() {
	const batchSize = 1000

	submitEvs := make([]*SubmitOrderEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		submitEvs = append(submitEvs, AcquireSubmitOrderEvent())
	}
	for _, ev := range submitEvs {
		ReleaseSubmitOrderEvent(ev)
	}

	cancelEvs := make([]*CancelOrderEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cancelEvs = append(cancelEvs, AcquireCancelOrderEvent())
	}
	for _, ev := range cancelEvs {
		ReleaseCancelOrderEvent(ev)
	}
}
