package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertTruncatesTowardZero(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		{name: "whole result", amount: "500", rate: "18.70", want: "9350.00000000"},
		{name: "drops ninth digit", amount: "1", rate: "0.123456789", want: "0.12345678"},
		{name: "never rounds up", amount: "0.00000001", rate: "0.99", want: "0.00000000"},
		{name: "small rate", amount: "100", rate: "0.053", want: "5.30000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(MustParse(tt.amount), MustParse(tt.rate))
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestConvertIsReproducible(t *testing.T) {
	amount := MustParse("1234.56789012")
	rate := MustParse("18.70123456")

	first := Convert(amount, rate)
	for i := 0; i < 100; i++ {
		assert.True(t, first.Equal(Convert(amount, rate)))
	}
}

func TestFitsScale(t *testing.T) {
	assert.True(t, FitsScale(MustParse("1000.12345678")))
	assert.True(t, FitsScale(MustParse("10")))
	assert.False(t, FitsScale(MustParse("0.000000001")))
}

func TestPositive(t *testing.T) {
	assert.True(t, Positive(MustParse("0.00000001")))
	assert.False(t, Positive(Zero))
	assert.False(t, Positive(MustParse("-5")))
}

func TestFormatPreservesPrecision(t *testing.T) {
	assert.Equal(t, "1000.12345678", Format(MustParse("1000.12345678")))
	assert.Equal(t, "0.00000000", Format(Zero))
}
