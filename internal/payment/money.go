package payment

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// usdcDecimals is USDC's on-chain decimal precision (spec §6 GLOSSARY).
const usdcDecimals = 6

var usdcScale = decimal.New(1, usdcDecimals)

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// defaultAtomicAmount is returned by atomic() for malformed input, per spec
// §4.5.2 ("Malformed input defaults to \"10000\"").
const defaultAtomicAmount = "10000"

// Atomic implements spec §4.5.2's atomic(money): strips everything but digits
// and the decimal point from a dollar string, multiplies by 10^6, floors, and
// renders as a decimal
// string with no leading zeros.
func Atomic(money string) string {
	cleaned := nonNumeric.ReplaceAllString(money, "")
	if cleaned == "" || cleaned == "." {
		return defaultAtomicAmount
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return defaultAtomicAmount
	}

	atomic := d.Mul(usdcScale).Floor()
	return atomic.String()
}

// ComputeMarkupPrice implements spec §4.5.3 computeMarkupPrice: percent
// markup ("20%") multiplies, fixed markup ("$0.01") adds; result is
// rendered at 6-decimal precision as "$X.XXXXXX".
func ComputeMarkupPrice(downstreamPrice, markup string) (string, error) {
	base, err := parseMoney(downstreamPrice)
	if err != nil {
		return "", err
	}

	var result decimal.Decimal
	if strings.HasSuffix(markup, "%") {
		percent, err := decimal.NewFromString(strings.TrimSuffix(markup, "%"))
		if err != nil {
			return "", err
		}
		factor := decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100)))
		result = base.Mul(factor)
	} else {
		fixed, err := parseMoney(markup)
		if err != nil {
			return "", err
		}
		result = base.Add(fixed)
	}

	return renderMoney(result), nil
}

func parseMoney(money string) (decimal.Decimal, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(money), "$")
	return decimal.NewFromString(cleaned)
}

func renderMoney(d decimal.Decimal) string {
	return "$" + d.Round(usdcDecimals).StringFixed(usdcDecimals)
}
