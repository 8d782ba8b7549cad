package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

func item(qty int32, price, discount string) domain.OrderItem {
	return domain.OrderItem{
		Quantity: qty,
		Price:    decimal.RequireFromString(price),
		Discount: decimal.RequireFromString(discount),
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCompute_Table(t *testing.T) {
	tests := []struct {
		name      string
		items     []domain.OrderItem
		wantBase  string
		wantTax   string
		wantTotal string
	}{
		{
			name:      "no discount",
			items:     []domain.OrderItem{item(2, "10.00", "0")},
			wantBase:  "20.00",
			wantTax:   "4.20",
			wantTotal: "24.20",
		},
		{
			name:      "half discount",
			items:     []domain.OrderItem{item(3, "5.00", "50")},
			wantBase:  "7.50",
			wantTax:   "1.575",
			wantTotal: "9.075",
		},
		{
			name:      "empty list",
			items:     nil,
			wantBase:  "0",
			wantTax:   "0",
			wantTotal: "0",
		},
		{
			name: "several lines",
			items: []domain.OrderItem{
				item(1, "12.35", "10"),
				item(4, "0.99", "0"),
				item(2, "7.00", "100"),
			},
			wantBase:  "15.075",
			wantTax:   "3.16575",
			wantTotal: "18.24075",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.items)
			requireDecimal(t, tt.wantBase, got.Base)
			requireDecimal(t, tt.wantTax, got.Tax)
			requireDecimal(t, tt.wantTotal, got.Total)
			require.True(t, Total(tt.items).Equal(got.Total))
		})
	}
}

func TestLineSubtotal(t *testing.T) {
	requireDecimal(t, "7.5", LineSubtotal(item(3, "5.00", "50")))
	requireDecimal(t, "0", LineSubtotal(item(9, "3.10", "100")))
	requireDecimal(t, "2.6667", LineSubtotal(item(1, "4.00", "33.3325")))
}

func randomItems(r *rand.Rand) []domain.OrderItem {
	n := r.Intn(8)
	items := make([]domain.OrderItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.OrderItem{
			Quantity: int32(r.Intn(50) + 1),
			Price:    decimal.New(int64(r.Intn(100000)), -2),
			Discount: decimal.New(int64(r.Intn(10001)), -2),
		})
	}
	return items
}

func TestCompute_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	multiplier := decimal.NewFromInt(1).Add(TaxRate)

	for i := 0; i < 500; i++ {
		items := randomItems(r)
		got := Compute(items)

		base := decimal.Zero
		for _, it := range items {
			sub := decimal.NewFromInt32(it.Quantity).Mul(it.Price).Mul(decimal.NewFromInt(1).Sub(it.Discount.Div(decimal.NewFromInt(100))))
			base = base.Add(sub)
		}

		require.True(t, base.Equal(got.Base), "base mismatch: %s vs %s", base, got.Base)
		require.True(t, got.Base.Mul(multiplier).Equal(got.Total), "total must equal base*(1+rate)")
		require.False(t, got.Total.IsNegative())
	}
}

func TestFromTotal_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tolerance := decimal.New(1, -9)

	for i := 0; i < 500; i++ {
		direct := Compute(randomItems(r))
		derived := FromTotal(direct.Total)

		require.True(t, derived.Base.Sub(direct.Base).Abs().LessThan(tolerance), "base drift: %s vs %s", derived.Base, direct.Base)
		require.True(t, derived.Tax.Sub(direct.Tax).Abs().LessThan(tolerance), "tax drift: %s vs %s", derived.Tax, direct.Tax)
		require.True(t, derived.Total.Equal(direct.Total))
	}
}

func TestRound2(t *testing.T) {
	requireDecimal(t, "9.08", Round2(decimal.RequireFromString("9.075")))
	requireDecimal(t, "1.58", Round2(decimal.RequireFromString("1.575")))
}
