package internal

import "github.com/shopspring/decimal"

func init() {
	// Percentages go over the wire as plain JSON numbers in (0, 100].
	decimal.MarshalJSONWithoutQuotes = true
}
