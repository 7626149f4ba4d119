package pricetick

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundBands(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"2345678", "2345000"},
		{"1234567", "1234500"},
		{"567890", "567800"},
		{"123456", "123450"},
		{"12345", "12340"},
		{"1234", "1230"},
		{"123", "123"},
		{"12.34", "12.3"},
		{"1.234", "1.23"},
		{"0.1234", "0.123"},
	}
	for _, c := range cases {
		got := Round(decimal.RequireFromString(c.price))
		assert.Equal(t, c.want, got.String(), "price=%s", c.price)
	}
}

func TestValidAfterRound(t *testing.T) {
	for _, p := range []string{"2345678", "567890", "1234", "12.34", "0.1234"} {
		rounded := Round(decimal.RequireFromString(p))
		assert.True(t, Valid(rounded), "rounded price %s should be tick-valid", rounded)
	}
}
