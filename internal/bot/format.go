package bot

import (
	"fmt"
	"strings"

	"github.com/labscan/labscan-api/internal/models"
)

// FormatPrice renders a ruble amount with space-separated thousands,
// e.g. 1234.0 -> "1 234 ₽".
func FormatPrice(price float64) string {
	n := int64(price + 0.5)
	s := fmt.Sprintf("%d", n)

	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(digit)
	}
	b.WriteString(" ₽")
	return b.String()
}

// FormatResults renders comparison results as a Markdown message.
func FormatResults(results []models.ComparisonResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		var lines []string
		lines = append(lines, fmt.Sprintf("🔬 *%s*", capitalize(r.Query)))

		if r.Cheapest != nil {
			lines = append(lines, fmt.Sprintf("💰 Самая дешевая: [%s](%s) — *%s*",
				r.Cheapest.Provider.DisplayName(), r.Cheapest.Link, FormatPrice(r.Cheapest.Price)))
		} else {
			lines = append(lines, "💰 Самая дешевая: *нет данных*")
		}

		for _, provider := range models.Providers {
			offer := r.Offers[provider]
			name := offer.MatchedName
			if name == "" {
				name = "—"
			}
			priceStr := "—"
			if offer.Price != nil {
				priceStr = "*" + FormatPrice(*offer.Price) + "*"
			}
			if offer.Link != "" {
				lines = append(lines, fmt.Sprintf("• %s: [%s](%s) — %s",
					provider.DisplayName(), name, offer.Link, priceStr))
			} else {
				lines = append(lines, fmt.Sprintf("• %s: %s — %s",
					provider.DisplayName(), name, priceStr))
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
