package units

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFormat(t *testing.T) {
	v, err := Parse("10000")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000000", v.Dec())
	assert.Equal(t, "10000", Format(v))

	p, err := Parse("0.25")
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", p.Dec())
	assert.Equal(t, "0.25", Format(p))
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("-1")
	assert.ErrorIs(t, err, ErrNegative)

	_, err = Parse("0.0000000000000000001")
	assert.ErrorIs(t, err, ErrTooPrecise)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrEmptyAmount)

	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestMulBpsTruncates(t *testing.T) {
	out, err := MulBps(*uint256.NewInt(9999), 3000)
	require.NoError(t, err)
	// 9999 * 3000 / 10000 = 2999.7
	assert.Equal(t, uint64(2999), out.Uint64())

	amount := MustParse("3000")
	spend, err := MulBps(amount, 8000)
	require.NoError(t, err)
	assert.Equal(t, MustParse("2400"), spend)
}

func TestMulBpsLargeValues(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	// the intermediate product exceeds 256 bits but the result fits
	out, err := MulBps(*max, 5000)
	require.NoError(t, err)
	assert.True(t, out.Lt(max))
}

func TestRatioBps(t *testing.T) {
	r, ok := RatioBps(MustParse("30"), MustParse("100"))
	require.True(t, ok)
	assert.Equal(t, uint64(3000), r)

	_, ok = RatioBps(MustParse("1"), uint256.Int{})
	assert.False(t, ok)
}

func TestSubAndAbsDiff(t *testing.T) {
	_, ok := Sub(*uint256.NewInt(1), *uint256.NewInt(2))
	assert.False(t, ok)

	d := AbsDiff(*uint256.NewInt(3), *uint256.NewInt(10))
	assert.Equal(t, uint64(7), d.Uint64())
}
