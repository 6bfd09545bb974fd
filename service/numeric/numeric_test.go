package numeric

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   *big.Int
		want string
	}{
		{"zero", big.NewInt(0), strings.Repeat("0", 64)},
		{"one", big.NewInt(1), strings.Repeat("0", 63) + "1"},
		{"negative", big.NewInt(-255), "-" + strings.Repeat("0", 62) + "ff"},
		{"nil is zero", nil, strings.Repeat("0", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_WidthInvariant(t *testing.T) {
	for _, v := range []int64{0, 1, 42, 1 << 40, -1, -(1 << 62)} {
		s := Encode(big.NewInt(v))
		assert.Len(t, strings.TrimPrefix(s, "-"), Width, "value %d", v)
	}
}

func TestEncode_Oversize(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 260)
	s := Encode(v)
	assert.Greater(t, len(s), Width)

	back, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(back))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"plain", "ff", 255},
		{"prefixed", "0xff", 255},
		{"negative prefixed", "-0x10", -16},
		{"padded", strings.Repeat("0", 62) + "0a", 10},
		{"negative padded", "-" + strings.Repeat("0", 63) + "1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, in := range []string{"", "0x", "-", "zz", "12g4", "-0x",
		"--5", "+5", "0x-5", "-0x+5", "0x+a", "1_0", " 5", "0x0x5",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Decode(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedNumber)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890123456789", 10)
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(7),
		big.NewInt(-7),
		big.NewInt(1_000_000_000_000),
		huge,
		new(big.Int).Neg(huge),
	}
	for _, v := range values {
		got, err := Decode(Encode(v))
		require.NoError(t, err)
		assert.Equal(t, 0, v.Cmp(got), "round trip of %s", v)
	}
}

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal("1000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), v.Int64())

	_, err = ParseDecimal("")
	assert.ErrorIs(t, err, ErrMalformedNumber)

	_, err = ParseDecimal("1.5")
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestAdd(t *testing.T) {
	got, err := Add(Encode(big.NewInt(100)), big.NewInt(-150))
	require.NoError(t, err)
	assert.Equal(t, Encode(big.NewInt(-50)), got)

	_, err = Add("nope", big.NewInt(1))
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestScaledFloat(t *testing.T) {
	assert.InDelta(t, 1.5, ScaledFloat(big.NewInt(1_500_000), 6), 1e-9)
	assert.InDelta(t, -0.25, ScaledFloat(big.NewInt(-25), 2), 1e-9)
	assert.InDelta(t, 42, ScaledFloat(big.NewInt(42), 0), 1e-9)
	assert.Equal(t, 0.0, ScaledFloat(nil, 6))

	// remainder wider than a float64 mantissa is truncated, not rejected
	v, _ := new(big.Int).SetString("1234567890123456789012345678", 10)
	got := ScaledFloat(v, 27)
	assert.InDelta(t, 1.2345678901234567, got, 1e-12)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2345, 2))
	assert.Equal(t, 2.0, Round(1.999, 2))
	assert.Equal(t, -1.5, Round(-1.499, 1))
}
