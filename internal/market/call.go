package market

import "market_sim/internal/domain"

type curvePoint struct {
	price      float64
	cumulative float64
}

func cumulativeCurve(orders []*domain.Order) []curvePoint {
	curve := make([]curvePoint, len(orders))
	var total float64
	for i, o := range orders {
		total += o.Remaining()
		curve[i] = curvePoint{price: o.Price, cumulative: total}
	}
	return curve
}

// clearingPoint scans every (demand, supply) pair of curve points and keeps
// the first crossing pair with the largest matched volume. The clearing
// price is the midpoint of that pair.
func clearingPoint(demand, supply []curvePoint) (price, quantity float64, ok bool) {
	for _, d := range demand {
		for _, s := range supply {
			if d.price < s.price {
				continue
			}
			if q := min(d.cumulative, s.cumulative); q > quantity {
				quantity = q
				price = (d.price + s.price) / 2
				ok = true
			}
		}
	}
	return price, quantity, ok
}

// matchCallMarket clears the whole book at one uniform price.
func (m *Market) matchCallMarket() []domain.Transaction {
	bids := m.bids.orders()
	asks := m.asks.orders()
	if len(bids) == 0 || len(asks) == 0 {
		return nil
	}

	price, quantity, ok := clearingPoint(cumulativeCurve(bids), cumulativeCurve(asks))
	if !ok {
		return nil
	}

	var txs []domain.Transaction
	remaining := quantity
	for _, bid := range bids {
		if remaining <= 0 {
			break
		}
		want := min(bid.Remaining(), remaining)
		for _, ask := range asks {
			if want <= 0 || bid.Price < ask.Price {
				break
			}
			if !ask.IsOpen() {
				continue
			}
			qty := min(want, ask.Remaining(), bid.Remaining())
			if qty <= 0 {
				continue
			}
			txs = append(txs, m.execute(bid, ask, qty, price))
			want -= qty
			remaining -= qty
		}
	}
	return txs
}
