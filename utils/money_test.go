package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected int64
	}{
		{"exact integer", 20.0, 20},
		{"below half rounds down", 19.4, 19},
		{"exactly half rounds up", 19.5, 20},
		{"above half rounds up", 19.6, 20},
		{"zero", 0.0, 0},
		{"small fraction", 0.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoundHalfUp(tt.input))
		})
	}
}

func TestPercentCommission(t *testing.T) {
	tests := []struct {
		name       string
		valueMinor int64
		rate       float64
		expected   int64
	}{
		{"10 percent of 200.00", 20000, 10, 2000},
		{"7.5 percent of 99.99", 9999, 7.5, 750}, // 749.925 rounds up
		{"zero rate", 20000, 0, 0},
		{"one cent value", 1, 10, 0},      // 0.1 rounds down
		{"half cent rounds up", 5, 10, 1}, // 0.5 rounds up
		{"100 percent", 12345, 100, 12345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PercentCommission(tt.valueMinor, tt.rate))
		})
	}
}
