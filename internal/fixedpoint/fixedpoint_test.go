package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigs(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestSqrt(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0}, {1, 1}, {2, 1}, {3, 1}, {4, 2}, {15, 3}, {16, 4}, {17, 4},
		{99980001, 9999}, {100000000, 10000},
	}
	for _, tt := range tests {
		got, err := Sqrt(big.NewInt(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Int64(), "sqrt(%d)", tt.in)
	}

	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	got, err := Sqrt(huge)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil).String(), got.String())
}

func TestSqrt_FloorAndMonotonic(t *testing.T) {
	prev := big.NewInt(0)
	for i := int64(0); i < 2000; i++ {
		v := big.NewInt(i)
		r, err := Sqrt(v)
		require.NoError(t, err)

		sq := new(big.Int).Mul(r, r)
		next := new(big.Int).Add(r, big.NewInt(1))
		next.Mul(next, next)
		assert.True(t, sq.Cmp(v) <= 0, "r^2 <= v for %d", i)
		assert.True(t, next.Cmp(v) > 0, "(r+1)^2 > v for %d", i)
		assert.True(t, r.Cmp(prev) >= 0, "monotonic at %d", i)
		prev = r
	}
}

func TestSqrt_Negative(t *testing.T) {
	_, err := Sqrt(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestSqrtScaled(t *testing.T) {
	got, err := SqrtScaled(big.NewInt(2500)) // sqrt(0.25)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Int64())
}

func TestLog2(t *testing.T) {
	tests := []struct {
		in   int64
		want int
	}{
		{1, 0}, {2, 1}, {3, 1}, {1023, 9}, {1024, 10},
	}
	for _, tt := range tests {
		got, err := Log2(big.NewInt(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Log2(big.NewInt(0))
	assert.ErrorIs(t, err, ErrDomain)
	_, err = Log2(big.NewInt(-8))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestLog2Scaled(t *testing.T) {
	exact := []struct {
		in, want int64
	}{
		{Scale, 0},
		{2 * Scale, Scale},
		{8 * Scale, 3 * Scale},
		{Scale / 2, -Scale},
	}
	for _, tt := range exact {
		got, err := Log2Scaled(big.NewInt(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Int64(), "log2(%d/Scale)", tt.in)
	}

	for _, in := range []int64{3 * Scale, 1, 7, 12345, 987654321} {
		got, err := Log2Scaled(big.NewInt(in))
		require.NoError(t, err)
		want := math.Log2(float64(in)/Scale) * Scale
		assert.InDelta(t, want, float64(got.Int64()), 1.0, "log2(%d/Scale)", in)
	}

	_, err := Log2Scaled(big.NewInt(0))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestMulDiv(t *testing.T) {
	assert.Equal(t, int64(1250), Mul(big.NewInt(2500), big.NewInt(5000)).Int64())

	q, err := Div(big.NewInt(2500), big.NewInt(5000))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), q.Int64())

	// truncation toward zero
	q, err = Div(big.NewInt(-Scale), big.NewInt(3*Scale))
	require.NoError(t, err)
	assert.Equal(t, int64(-3333), q.Int64())

	_, err = Div(big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrDomain)
	_, err = MulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestMinMaxAbs(t *testing.T) {
	a, b := big.NewInt(-3), big.NewInt(7)
	assert.Equal(t, int64(-3), Min(a, b).Int64())
	assert.Equal(t, int64(7), Max(a, b).Int64())
	assert.Equal(t, int64(3), Abs(a).Int64())
	assert.Equal(t, int64(10), AbsDiff(a, b).Int64())
	assert.Equal(t, int64(10), AbsDiff(b, a).Int64())
	assert.Equal(t, int64(-3), a.Int64(), "inputs are not mutated")

	vals := bigs(4, -2, 9, 0)
	assert.Equal(t, int64(9), MaxOf(vals).Int64())
	assert.Equal(t, int64(-2), MinOf(vals).Int64())
	assert.Equal(t, int64(11), Sum(vals).Int64())
}

func TestVarianceAndStdDev(t *testing.T) {
	vals := bigs(2, 4, 4, 4, 5, 5, 7, 9)

	v, err := Variance(vals)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Int64())

	sd, err := StdDev(vals)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sd.Int64())

	sd, err = StdDev(bigs(42))
	require.NoError(t, err)
	assert.Equal(t, int64(0), sd.Int64())

	_, err = Variance(nil)
	assert.ErrorIs(t, err, ErrDomain)
	_, err = Mean(nil)
	assert.ErrorIs(t, err, ErrDomain)

	m, err := Mean(bigs(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Int64())
}

func TestClamp_Idempotent(t *testing.T) {
	for _, in := range []int64{-20000, -1, 0, 5000, Scale, 12000} {
		once := ClampUnit(big.NewInt(in))
		twice := ClampUnit(once)
		assert.Equal(t, once.Int64(), twice.Int64())
		assert.True(t, once.Sign() >= 0 && once.Int64() <= Scale)

		s := ClampSigned(big.NewInt(in))
		assert.Equal(t, s.Int64(), ClampSigned(s).Int64())
	}
}

func TestFromFloat(t *testing.T) {
	v, err := FromFloat(0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), v.Int64())

	v, err = FromFloat(-0.12346)
	require.NoError(t, err)
	assert.Equal(t, int64(-1235), v.Int64())
	assert.InDelta(t, -0.1235, ToFloat(v), 1e-9)

	_, err = FromFloat(math.NaN())
	assert.ErrorIs(t, err, ErrDomain)
}
