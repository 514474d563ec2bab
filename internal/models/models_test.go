package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dist(points ...[2]int64) Distribution {
	d := make(Distribution, len(points))
	for i, p := range points {
		d[i] = Point{Tick: p[0], Liquidity: big.NewInt(p[1])}
	}
	return d
}

func TestDistributionValidate(t *testing.T) {
	tests := []struct {
		name    string
		dist    Distribution
		wantErr bool
	}{
		{"valid", dist([2]int64{-10, 5}, [2]int64{0, 7}, [2]int64{10, 0}), false},
		{"empty", Distribution{}, true},
		{"unsorted", dist([2]int64{10, 5}, [2]int64{0, 7}), true},
		{"duplicate tick", dist([2]int64{0, 5}, [2]int64{0, 7}), true},
		{"negative liquidity", dist([2]int64{0, -1}, [2]int64{10, 7}), true},
		{"nil liquidity", Distribution{{Tick: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dist.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInputShape)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestObservationValidate(t *testing.T) {
	obs := Observation{
		PoolID:       "pool-1",
		BlockNumber:  12,
		Distribution: dist([2]int64{0, 1}, [2]int64{10, 2}),
		ObservedAt:   time.Now(),
	}
	assert.NoError(t, obs.Validate())

	missingPool := obs
	missingPool.PoolID = ""
	assert.Error(t, missingPool.Validate())

	missingTime := obs
	missingTime.ObservedAt = time.Time{}
	assert.Error(t, missingTime.Validate())
}

func TestFromRange(t *testing.T) {
	liq := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}

	d, err := FromRange(liq, -20, 20, 20)
	require.NoError(t, err)
	require.Len(t, d, 3)
	assert.Equal(t, int64(-20), d[0].Tick)
	assert.Equal(t, int64(0), d[1].Tick)
	assert.Equal(t, int64(20), d[2].Tick)
	assert.Equal(t, int64(3), d[2].Liquidity.Int64())

	_, err = FromRange(liq, 0, 100, 10)
	assert.ErrorIs(t, err, ErrInputShape)

	_, err = FromRange(liq, 0, 20, 0)
	assert.ErrorIs(t, err, ErrInputShape)
}

func TestAlign(t *testing.T) {
	a := dist([2]int64{0, 1}, [2]int64{10, 2}, [2]int64{20, 3})
	b := dist([2]int64{10, 4}, [2]int64{20, 5}, [2]int64{30, 6})

	pa, pb, err := Align(a, b, 10)
	require.NoError(t, err)
	require.Len(t, pa, 4)
	require.Len(t, pb, 4)

	for i := range pa {
		assert.Equal(t, pa[i].Tick, pb[i].Tick)
	}
	assert.Equal(t, int64(0), pa[3].Liquidity.Int64())
	assert.Equal(t, int64(0), pb[0].Liquidity.Int64())
	assert.Equal(t, int64(6), pb[3].Liquidity.Int64())
	assert.Equal(t, int64(1), a[0].Liquidity.Int64(), "inputs untouched")

	_, _, err = Align(a, dist([2]int64{5, 1}), 10)
	assert.ErrorIs(t, err, ErrInputShape)
}

func TestDistributionHelpers(t *testing.T) {
	d := dist([2]int64{0, 3}, [2]int64{1, 4})
	assert.Equal(t, int64(7), d.Total().Int64())
	assert.Len(t, d.Liquidity(), 2)

	c := d.Clone()
	c[0].Liquidity.SetInt64(100)
	assert.Equal(t, int64(3), d[0].Liquidity.Int64())

	assert.NoError(t, SameShape(d, c))
	assert.ErrorIs(t, SameShape(d, d[:1]), ErrInputShape)

	slid := dist([2]int64{1, 3}, [2]int64{2, 4})
	assert.ErrorIs(t, SameShape(d, slid), ErrInputShape, "same length, shifted ticks")

	assert.True(t, ZeroVolatility().IsZero())
}
