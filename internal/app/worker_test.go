package app

import (
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"aapl", "AAPL"},
		{"BRK.B", "BRKB"},
		{"brk/b", "BRKB"},
		{"BF-B", "BFB"},
		{" TSLA ", "TSLA"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSymbol(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeSymbol(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}
