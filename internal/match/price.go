package match

import (
	"regexp"
	"strconv"
	"strings"
)

// nonPriceChars strips everything except digits and decimal separators.
var nonPriceChars = regexp.MustCompile(`[^\d,.]`)

// ParsePrice extracts a numeric price from raw provider text such as
// "1 234,50 ₽". The comma decimal separator is normalized to a dot.
// Text with no parsable number ("цена по запросу", "") returns ok=false;
// an unparsable price is "no price", never an error.
func ParsePrice(raw string) (float64, bool) {
	cleaned := nonPriceChars.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
