package normalize

import (
	"fmt"

	"github.com/marketprism/marketprism/internal/decimalx"
)

// parseDecimalField parses a mandatory decimal-bearing field, naming the
// field in the error so validation failures are actionable.
func parseDecimalField(field, text string) (decimalx.Number, error) {
	if text == "" {
		return decimalx.Number{}, fmt.Errorf("normalize: missing mandatory field %s", field)
	}
	n, err := decimalx.Parse(text)
	if err != nil {
		return decimalx.Number{}, fmt.Errorf("normalize: field %s: %w", field, err)
	}
	return n, nil
}
