package plans

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is a price in minor units of an ISO 4217 currency. Prices are
// informational; nothing in the entitlement path reads them.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// USD returns a Money in US cents.
func USD(cents int64) Money {
	return Money{Amount: cents, Currency: "USD"}
}

// Validate checks the currency code and sign.
func (m Money) Validate() error {
	if m.Amount < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidPlan)
	}
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return fmt.Errorf("%w: unknown currency %q", ErrInvalidPlan, m.Currency)
	}
	return nil
}

// String renders the price with its currency symbol, e.g. "$ 29.00".
func (m Money) String() string {
	unit, err := currency.ParseISO(strings.ToUpper(m.Currency))
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := float64(m.Amount) / math.Pow10(scale)
	return message.NewPrinter(language.English).Sprint(currency.Symbol(unit.Amount(value)))
}
