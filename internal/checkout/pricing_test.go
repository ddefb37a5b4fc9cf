package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		quantity int
		fee      string
		want     string
	}{
		{"fee inflates unit price", "100", 2, "15", "230.00"},
		{"no fee", "100", 2, "0", "200.00"},
		{"single unit with fee", "50", 1, "10", "55.00"},
		{"free ticket ignores fee", "0", 5, "15", "0"},
		{"fractional price rounds to cents", "33.33", 3, "7.5", "107.49"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(dec(tt.unit), tt.quantity, dec(tt.fee))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestUnitWithFeeZeroPriceAlwaysZero(t *testing.T) {
	for _, fee := range []string{"0", "10", "100", "37.5"} {
		got := UnitWithFee(decimal.Zero, dec(fee))
		assert.True(t, got.IsZero(), "fee %s produced %s", fee, got)
	}
}

func TestOrderTotalSumsLines(t *testing.T) {
	lines := []Line{
		{UnitPrice: dec("50"), Quantity: 2},
		{UnitPrice: dec("100"), Quantity: 1},
		{UnitPrice: dec("0"), Quantity: 4},
	}
	got := OrderTotal(lines, dec("10"))
	// 55*2 + 110 + 0
	require.True(t, got.Equal(dec("220.00")), "got %s", got)
}

func TestServiceFeeAmount(t *testing.T) {
	got := ServiceFeeAmount(dec("50"), dec("10"))
	assert.True(t, got.Equal(dec("5.00")), "got %s", got)

	assert.True(t, ServiceFeeAmount(decimal.Zero, dec("10")).IsZero())
}

// The displayed breakdown (subtotal + service fee) must match the amount
// actually charged through the fee-inflated unit price.
func TestDisplayedTotalsMatchCharge(t *testing.T) {
	unit := dec("50")
	fee := dec("10")

	charged := LineTotal(unit, 1, fee)
	displayed := unit.Add(ServiceFeeAmount(unit, fee))

	require.True(t, charged.Equal(dec("55.00")), "charged %s", charged)
	require.True(t, displayed.Equal(charged), "displayed %s charged %s", displayed, charged)
}
