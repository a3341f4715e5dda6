package core

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatUSD formats m the way en-US renders USD, e.g. "$1,234.56" or "-$5.00".
func FormatUSD(m Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}
