package amount

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToScaled(t *testing.T) {
	tests := []struct {
		value    string
		decimals int
		want     string
	}{
		{"950.123456789", 9, "950123456789"},
		{"1000", 6, "1000000000"},
		{"0.1", 18, "100000000000000000"},
		{"1.005", 2, "101"},
		{"1.004", 2, "100"},
		{"2.5", 0, "3"},
		{"1e3", 2, "100000"},
		{".5", 1, "5"},
		{"0", 9, "0"},
	}

	for _, tt := range tests {
		got, err := ToScaled(tt.value, tt.decimals)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got.String(), tt.value)
	}
}

func TestToScaledRejects(t *testing.T) {
	_, err := ToScaled("1", -1)
	assert.ErrorIs(t, err, ErrPrecision)
	_, err = ToScaled("1", 19)
	assert.ErrorIs(t, err, ErrPrecision)

	for _, in := range []string{"", "abc", "1/3", "0x10", "1.2.3"} {
		_, err := ToScaled(in, 9)
		assert.ErrorIs(t, err, ErrInvalidDecimal, in)
	}
	for _, in := range []string{"NaN", "Inf", "-Infinity", "+inf"} {
		_, err := ToScaled(in, 9)
		assert.ErrorIs(t, err, ErrNotFinite, in)
	}
}

func TestParseBounds(t *testing.T) {
	for _, in := range []string{"1e900000", "1e65", "1e-65", strings.Repeat("9", MaxDigits+1), "0." + strings.Repeat("0", MaxDigits) + "1"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrOutOfRange, in)
	}
	for _, in := range []string{"1e64", "1e-64", strings.Repeat("9", MaxDigits), "0." + strings.Repeat("0", MaxDigits-2) + "1"} {
		_, err := Parse(in)
		assert.NoError(t, err, in)
	}
}

func TestToScaledExact(t *testing.T) {
	got, err := ToScaledExact("950.123456789", 9)
	require.NoError(t, err)
	assert.Equal(t, "950123456789", got.String())

	_, err = ToScaledExact("950.1234567891", 9)
	assert.ErrorIs(t, err, ErrInexact)
}

func TestFromScaled(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"950123456789", 9, "950.123456789"},
		{"950000000000", 9, "950"},
		{"1000000", 6, "1"},
		{"1", 18, "0.000000000000000001"},
		{"1050", 3, "1.05"},
		{"-1500", 3, "-1.5"},
		{"42", 0, "42"},
	}

	for _, tt := range tests {
		raw, ok := new(big.Int).SetString(tt.raw, 10)
		require.True(t, ok)
		got, err := FromScaled(raw, tt.decimals)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := FromScaled(big.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrPrecision)
	_, err = FromScaled(nil, 9)
	assert.ErrorIs(t, err, ErrInvalidDecimal)
}

func TestRoundTripScaled(t *testing.T) {
	raws := []string{"0", "1", "9", "10", "123456789", "950123456789", "1000000000000000000", "340282366920938463463374607431768211455"}
	for d := 0; d <= MaxDecimals; d++ {
		for _, s := range raws {
			x, _ := new(big.Int).SetString(s, 10)
			dec, err := FromScaled(x, d)
			require.NoError(t, err)
			back, err := ToScaled(dec, d)
			require.NoError(t, err)
			assert.Equal(t, 0, x.Cmp(back), "raw=%s decimals=%d dec=%s", s, d, dec)
		}
	}
}

func TestRoundTripDecimal(t *testing.T) {
	decimals := []string{"950.123456789", "1000", "0.5", "1.052631", "0.000000001"}
	for _, d := range decimals {
		r, err := Parse(d)
		require.NoError(t, err)
		for p := 9; p <= MaxDecimals; p++ {
			scaled, err := ToScaled(d, p)
			require.NoError(t, err)
			back, err := FromScaled(scaled, p)
			require.NoError(t, err)
			assert.Equal(t, Canonical(r), back, "value=%s precision=%d", d, p)
		}
	}
}

func TestCanonical(t *testing.T) {
	for in, want := range map[string]string{
		"950.1230":  "950.123",
		"1e3":       "1000",
		"0.0000001": "0.0000001",
		"1e-40":     "0." + strings.Repeat("0", 39) + "1",
		"1e-64":     "0." + strings.Repeat("0", 63) + "1",
		"950.1234567890000000000000000000000000001": "950.1234567890000000000000000000000000001",
		"-2.5e-50": "-0." + strings.Repeat("0", 49) + "25",
	} {
		r, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, want, Canonical(r), in)
	}
}

func TestCanonicalRepeating(t *testing.T) {
	assert.Equal(t, "0."+strings.Repeat("3", 36), Canonical(big.NewRat(1, 3)))
	assert.Equal(t, "0.1", Canonical(big.NewRat(1, 10)))
	assert.Equal(t, "0.0625", Canonical(big.NewRat(1, 16)))
}

func TestParsePositive(t *testing.T) {
	_, err := ParsePositive("0")
	assert.ErrorIs(t, err, ErrInvalidDecimal)
	_, err = ParsePositive("-1")
	assert.ErrorIs(t, err, ErrInvalidDecimal)
	r, err := ParsePositive("1.5")
	require.NoError(t, err)
	assert.Equal(t, "3/2", r.String())
}
