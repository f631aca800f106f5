package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tolerances applied by the matchers and the
// classifier. Tolerance is an absolute amount in currency units; a
// per-field difference of exactly the tolerance still counts as equal.
type MatchingConfig struct {
	// Tolerance is the maximum absolute per-field difference treated as
	// "no difference".
	Tolerance decimal.Decimal `json:"tolerance"`
}

// DefaultMatchingConfig returns the standard one-unit tolerance used by
// GST reconciliations.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Tolerance: decimal.NewFromInt(1),
	}
}

// Validate checks the configuration values.
func (c *MatchingConfig) Validate() error {
	if c.Tolerance.IsNegative() {
		return fmt.Errorf("tolerance cannot be negative: %s", c.Tolerance)
	}
	return nil
}
