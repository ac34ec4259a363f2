package match

import (
	"testing"
)

// ========================================
// ParsePrice Tests
// ========================================

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		ok   bool
	}{
		{"plain integer", "500", 500, true},
		{"currency suffix", "450,00 ₽", 450, true},
		{"thousands space", "1 234,50 ₽", 1234.50, true},
		{"dot decimal", "999.90", 999.90, true},
		{"price on request", "цена по запросу", 0, false},
		{"empty", "", 0, false},
		{"dash", "—", 0, false},
		{"mixed separators", "1.234,50", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
