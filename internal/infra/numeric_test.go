package infra

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToDecimal_Zero(t *testing.T) {
	n := DecimalToNumeric(decimal.Zero)
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestNumericToDecimal_TwoDecimalPlaces(t *testing.T) {
	// 15050 * 10^-2 = 150.50
	n := pgtype.Numeric{Int: big.NewInt(15050), Exp: -2, Valid: true}
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.Equal(t, "150.50", v.StringFixed(2))
}

func TestNumericToDecimal_Negative(t *testing.T) {
	n := DecimalToNumeric(decimal.RequireFromString("-150.00"))
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(-150)))
}

func TestNumericToDecimal_WithPositiveExponent(t *testing.T) {
	// 5 * 10^3 = 5000
	n := pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(5000)))
}

func TestNumericToDecimal_NullReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToDecimal_NaNReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NaN")
}

func TestNullableNumericToDecimal(t *testing.T) {
	v, err := NullableNumericToDecimal(pgtype.Numeric{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NullableNumericToDecimal(DecimalToNumeric(decimal.RequireFromString("9.99")))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "9.99", v.StringFixed(2))
}

func TestDecimalToNumeric_Roundtrip(t *testing.T) {
	values := []string{"0", "0.01", "-0.01", "1000.00", "99999999999999999.99", "-123.45"}
	for _, s := range values {
		d := decimal.RequireFromString(s)
		result, err := NumericToDecimal(DecimalToNumeric(d))
		require.NoError(t, err, "value: %s", s)
		assert.True(t, d.Equal(result), "value: %s", s)
	}
}
