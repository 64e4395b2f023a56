package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with thousand separators for audit
// snapshots and report strings. Ledger arithmetic stays on decimal.Decimal;
// this is presentation only.
func FormatAmount(currency string, amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	whole := amount.Truncate(0)
	frac := amount.Sub(whole).StringFixed(2)
	return moneyPrinter.Sprintf("%s %s%d%s", currency, sign, whole.IntPart(), frac[1:])
}
