package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minor unit digits per ISO currency; unknown currencies default to 2
var minorDigits = map[string]int32{
	"NGN": 2,
	"GHS": 2,
	"ZAR": 2,
	"KES": 2,
	"USD": 2,
	"XOF": 0,
}

func digits(currency string) int32 {
	if d, ok := minorDigits[strings.ToUpper(currency)]; ok {
		return d
	}
	return 2
}

// FormatAmount 主单位 -> 网关最小单位，四舍五入 (half away from zero)
func FormatAmount(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(digits(currency)).Round(0).IntPart()
}

// ParseAmount 最小单位 -> 主单位
func ParseAmount(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -digits(currency))
}
