package domain

import "fmt"

// DealerID is the counterparty id used when a dealer takes the other side.
const DealerID = "dealer"

// Transaction is an immutable record of one executed trade.
// BuyerOrderID or SellerOrderID is empty on the dealer's side.
type Transaction struct {
	ID            string  `json:"transaction_id"`
	BuyerID       string  `json:"buyer_id"`
	SellerID      string  `json:"seller_id"`
	AssetType     string  `json:"asset_type"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Value         float64 `json:"value"`
	Timestamp     int64   `json:"timestamp"`
	BuyerOrderID  string  `json:"buyer_order_id,omitempty"`
	SellerOrderID string  `json:"seller_order_id,omitempty"`
}

// NewTransaction builds a transaction and derives its value.
// Panics on a non-positive quantity or price.
func NewTransaction(id, buyerID, sellerID, assetType string, quantity, price float64, step int64, buyerOrderID, sellerOrderID string) Transaction {
	if quantity <= 0 {
		panic(fmt.Sprintf("TRANSACTION_INVARIANT_QUANTITY: %s quantity=%v", id, quantity))
	}
	if price <= 0 {
		panic(fmt.Sprintf("TRANSACTION_INVARIANT_PRICE: %s price=%v", id, price))
	}
	return Transaction{
		ID:            id,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		AssetType:     assetType,
		Quantity:      quantity,
		Price:         price,
		Value:         quantity * price,
		Timestamp:     step,
		BuyerOrderID:  buyerOrderID,
		SellerOrderID: sellerOrderID,
	}
}

func (t Transaction) String() string {
	return fmt.Sprintf("Transaction(%s, %s->%s, %s, %v@%v)", t.ID, t.BuyerID, t.SellerID, t.AssetType, t.Quantity, t.Price)
}
