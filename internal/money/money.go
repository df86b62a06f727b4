// Package money renders gateway minor-unit amounts for display.
package money

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	displayPlaces = 2
	defaultScale  = 2
)

var (
	localeMu sync.RWMutex
	locale   = language.English
)

// SetLocale sets the locale Format and FormatWithSymbol render for.
func SetLocale(tag language.Tag) {
	localeMu.Lock()
	locale = tag
	localeMu.Unlock()
}

// Locale returns the current display locale. It defaults to English.
func Locale() language.Tag {
	localeMu.RLock()
	defer localeMu.RUnlock()
	return locale
}

// Format converts an amount in the currency's minor unit (cents for USD)
// into a grouped decimal string with two places in the current locale,
// e.g. 123456 "usd" -> "1,234.56" in English, "1.234,56" in German.
// Rounding is half-up (away from zero for negative amounts).
func Format(amount int64, code string) string {
	return FormatIn(Locale(), amount, code)
}

// FormatIn is Format for an explicit locale.
func FormatIn(tag language.Tag, amount int64, code string) string {
	value := decimal.New(amount, -int32(scale(code))).Round(displayPlaces)
	return message.NewPrinter(tag).Sprint(number.Decimal(value.InexactFloat64(), number.Scale(displayPlaces)))
}

// FormatWithSymbol prefixes Format's result with the currency symbol
// ("$1,234.56"). Unknown currency codes fall back to the upper-cased code.
func FormatWithSymbol(amount int64, code string) string {
	tag := Locale()
	formatted := FormatIn(tag, amount, code)

	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.ToUpper(code) + " " + formatted
	}

	symbol := message.NewPrinter(tag).Sprint(currency.Symbol(unit))
	if strings.HasPrefix(formatted, "-") {
		return "-" + symbol + formatted[1:]
	}
	return symbol + formatted
}

func scale(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return defaultScale
	}
	s, _ := currency.Standard.Rounding(unit)
	return s
}
