package structure

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/models"
)

func curve(start, spacing int64, liquidity ...int64) models.Distribution {
	d := make(models.Distribution, len(liquidity))
	for i, l := range liquidity {
		d[i] = models.Point{Tick: start + int64(i)*spacing, Liquidity: big.NewInt(l)}
	}
	return d
}

func TestCenterIndex(t *testing.T) {
	d := curve(0, 10, 1, 1, 1, 1)
	tests := []struct {
		tick int64
		want int
	}{
		{-100, 0},
		{0, 0},
		{4, 0},
		{5, 0},
		{6, 1},
		{20, 2},
		{29, 3},
		{1000, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CenterIndex(d, tt.tick), "tick %d", tt.tick)
	}
}

func TestConcentration(t *testing.T) {
	tests := []struct {
		name string
		dist models.Distribution
		want int64
	}{
		{"uniform", curve(0, 1, 5, 5, 5, 5), 0},
		{"single tick", curve(0, 1, 0, 0, 7, 0), fixedpoint.Scale},
		{"skewed pair", curve(0, 1, 1, 3), 2500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Concentration(tt.dist)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Int64())
		})
	}
}

func TestConcentration_Degenerate(t *testing.T) {
	_, err := Concentration(curve(0, 1, 5))
	assert.ErrorIs(t, err, fixedpoint.ErrDomain)

	_, err = Concentration(curve(0, 1, 0, 0))
	assert.ErrorIs(t, err, fixedpoint.ErrDomain)
}

func TestDepth(t *testing.T) {
	d, err := Depth(curve(0, 10, 100, 100, 100), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(120), d.Int64())

	ws, err := DecayWeights(curve(0, 10, 1, 1, 1, 1, 1), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(fixedpoint.Scale), ws[0])
	assert.Equal(t, int64(1000), ws[2])
	for i := 1; i < len(ws); i++ {
		assert.Less(t, ws[i], ws[i-1])
	}

	_, err = Depth(curve(0, 10, 1, 1), 0, 0)
	assert.ErrorIs(t, err, models.ErrInputShape)
}

func TestDecayWeights_Table(t *testing.T) {
	tests := []struct {
		name      string
		d         models.Distribution
		current   int64
		halfWidth int64
		want      []int64
	}{
		{
			name:      "tenfold per index",
			d:         curve(0, 10, 1, 1, 1, 1, 1, 1, 1, 1),
			current:   0,
			halfWidth: 1,
			want:      []int64{10000, 1000, 100, 10, 1, 0, 0, 0},
		},
		{
			name:      "cube root steps",
			d:         curve(0, 10, 1, 1, 1, 1, 1, 1, 1),
			current:   0,
			halfWidth: 3,
			want:      []int64{10000, 4642, 2154, 1000, 464, 215, 100},
		},
		{
			name:      "symmetric around the center",
			d:         curve(-20, 10, 1, 1, 1, 1, 1),
			current:   2,
			halfWidth: 2,
			want:      []int64{1000, 3162, 10000, 3162, 1000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := DecayWeights(tt.d, tt.current, tt.halfWidth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ws)
		})
	}
}

func TestSpread(t *testing.T) {
	s, err := Spread(curve(0, 10, 1, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5*fixedpoint.Scale), s.Int64())

	s, err = Spread(curve(0, 10, 1, 1), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Int64(), "equidistant ticks have no spread")

	_, err = Spread(curve(0, 10, 0, 0), 0)
	assert.ErrorIs(t, err, fixedpoint.ErrDomain)
}

func TestCompute_BellCurve(t *testing.T) {
	bell := curve(-30, 10, 1, 4, 9, 16, 9, 4, 1)

	res, err := Compute(bell, 0, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1056), res.Concentration.Int64())
	assert.Equal(t, int64(26), res.Depth.Int64())
	assert.Equal(t, int64(84777), res.Spread.Int64())

	assert.Positive(t, res.Spread.Sign())
	assert.Positive(t, res.Depth.Sign())
	assert.Positive(t, res.Concentration.Sign())
	assert.Less(t, res.Concentration.Int64(), int64(fixedpoint.Scale))
}
