package window

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/liqoracle/internal/models"
)

func snap(id int64) models.Snapshot {
	return models.Snapshot{
		Distribution: models.Distribution{{Tick: 0, Liquidity: big.NewInt(id)}},
		Transition:   big.NewInt(id),
	}
}

func ids(snaps []models.Snapshot) []int64 {
	out := make([]int64, len(snaps))
	for i, s := range snaps {
		out[i] = s.Transition.Int64()
	}
	return out
}

func TestNew_RejectsSmallCapacity(t *testing.T) {
	for _, c := range []int{-1, 0, 1, 2} {
		_, err := New(c)
		assert.ErrorIs(t, err, models.ErrInputShape, "capacity %d", c)
	}
	m, err := New(3)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Cap())
	assert.Equal(t, 0, m.Len())
}

func TestPush_NeverExceedsCapacity(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)

	for i := int64(1); i <= 11; i++ {
		m.Push(snap(i))
		assert.LessOrEqual(t, m.Len(), 4)
	}

	assert.True(t, m.Full())
	assert.Equal(t, []int64{8, 9, 10, 11}, ids(m.All()))

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(11), latest.Transition.Int64())
}

func TestPush_PartialWindowKeepsOrder(t *testing.T) {
	m, err := New(5)
	require.NoError(t, err)

	m.Push(snap(1))
	m.Push(snap(2))
	assert.False(t, m.Full())
	assert.Equal(t, []int64{1, 2}, ids(m.All()))
}

func TestPreview_DoesNotMutate(t *testing.T) {
	m, err := New(3)
	require.NoError(t, err)
	for i := int64(1); i <= 3; i++ {
		m.Push(snap(i))
	}

	assert.Equal(t, []int64{2, 3, 4}, ids(m.Preview(snap(4))))
	assert.Equal(t, []int64{1, 2, 3}, ids(m.All()))

	m.Clear()
	assert.Equal(t, []int64{7}, ids(m.Preview(snap(7))))
}

func TestClear(t *testing.T) {
	m, err := New(3)
	require.NoError(t, err)
	m.Push(snap(1))
	m.Push(snap(2))

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.All())
	_, ok := m.Latest()
	assert.False(t, ok)

	m.Push(snap(9))
	assert.Equal(t, []int64{9}, ids(m.All()))
}
