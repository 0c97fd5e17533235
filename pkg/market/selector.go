package market

import (
	"fmt"
	"strings"
)

// Selector identifies a single trading pair on a single exchange.
type Selector struct {
	Exchange   string `json:"exchange" msgpack:"exchange"`
	ProductID  string `json:"product_id" msgpack:"product_id"`
	Asset      string `json:"asset" msgpack:"asset"`
	Currency   string `json:"currency" msgpack:"currency"`
	Normalized string `json:"normalized" msgpack:"normalized"`
}

// ParseSelector parses "exchange.ASSET-CURRENCY" into a Selector.
// The exchange is lower-cased and the product upper-cased.
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	exchangeName, product, ok := strings.Cut(raw, ".")
	if !ok || exchangeName == "" || product == "" {
		return Selector{}, fmt.Errorf("market: invalid selector %q, want exchange.ASSET-CURRENCY", raw)
	}
	product = strings.ToUpper(strings.TrimSpace(product))
	asset, currency, ok := strings.Cut(product, "-")
	if !ok || asset == "" || currency == "" {
		return Selector{}, fmt.Errorf("market: invalid product %q in selector %q", product, raw)
	}
	exchangeName = strings.ToLower(strings.TrimSpace(exchangeName))
	return Selector{
		Exchange:   exchangeName,
		ProductID:  product,
		Asset:      asset,
		Currency:   currency,
		Normalized: exchangeName + "." + product,
	}, nil
}

// MustParseSelector is like ParseSelector but panics on error.
func MustParseSelector(raw string) Selector {
	sel, err := ParseSelector(raw)
	if err != nil {
		panic(err)
	}
	return sel
}

func (s Selector) String() string { return s.Normalized }

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool { return s.Normalized == "" }
