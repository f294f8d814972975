package decimalx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesOriginalText(t *testing.T) {
	n, err := Parse("45000.500")
	require.NoError(t, err)
	assert.Equal(t, "45000.500", n.String())
	assert.True(t, n.Decimal().Equal(MustParse("45000.5").Decimal()))
}

func TestParse_RoundTripsThroughJSON(t *testing.T) {
	n := MustParse("0.00010000")
	data, err := n.MarshalJSON()
	require.NoError(t, err)

	var out Number
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, "0.00010000", out.String())
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestIsPositiveAndIsZero(t *testing.T) {
	assert.True(t, MustParse("0.1").IsPositive())
	assert.False(t, MustParse("0").IsPositive())
	assert.True(t, MustParse("0").IsZero())
	assert.True(t, MustParse("-1").Cmp(MustParse("0")) < 0)
}
