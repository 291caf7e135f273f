package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"0", "NGN", 0},
		{"1", "NGN", 100},
		{"0.005", "NGN", 1},
		{"1999.99", "NGN", 199999},
		{"5000", "NGN", 500000},
		{"5000", "ngn", 500000},
		{"12.344", "GHS", 1234},
		{"2500", "XOF", 2500},
		{"3.5", "ZZZ", 350},
	}
	for _, tc := range cases {
		t.Run(tc.amount+"_"+tc.currency, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatAmount(decimal.RequireFromString(tc.amount), tc.currency))
		})
	}
}

func TestAmountRoundTrip(t *testing.T) {
	tolerance := decimal.New(5, -3)
	for _, x := range []float64{0, 1, 0.005, 1999.99} {
		amount := decimal.NewFromFloat(x)
		back := ParseAmount(FormatAmount(amount, "NGN"), "NGN")
		diff := back.Sub(amount).Abs()
		assert.Truef(t, diff.LessThanOrEqual(tolerance), "x=%v back=%s", x, back)
	}
}

func TestParseAmount(t *testing.T) {
	assert.True(t, ParseAmount(500000, "NGN").Equal(decimal.NewFromInt(5000)))
	assert.True(t, ParseAmount(1, "NGN").Equal(decimal.RequireFromString("0.01")))
	assert.True(t, ParseAmount(2500, "XOF").Equal(decimal.NewFromInt(2500)))
}
