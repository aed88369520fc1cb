package market

import (
	"fmt"
	"testing"

	"market_sim/internal/domain"
)

func BenchmarkMarket_AddAndMatch(b *testing.B) {
	for _, mech := range allMechanisms {
		b.Run(string(mech), func(b *testing.B) {
			m, err := New("bench", domain.ResourceMarket, asset, mech, DefaultConfig())
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				side := domain.Buy
				if i%2 == 1 {
					side = domain.Sell
				}
				price := 95 + float64(i%10)
				m.AddOrder(domain.NewOrder(fmt.Sprintf("o%d", i), "bench", side, domain.ResourceMarket, asset, 1, price))
				if i%16 == 15 {
					m.Step()
				}
			}
		})
	}
}

func BenchmarkMarket_CancelDeepBook(b *testing.B) {
	m, err := New("bench", domain.ResourceMarket, asset, domain.ContinuousDoubleAuction, DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		m.AddOrder(domain.NewOrder(fmt.Sprintf("deep%d", i), "bench", domain.Buy, domain.ResourceMarket, asset, 1, 50+float64(i%40)))
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("c%d", i)
		m.AddOrder(domain.NewOrder(id, "bench", domain.Buy, domain.ResourceMarket, asset, 1, 60))
		m.CancelOrder(id)
	}
}
