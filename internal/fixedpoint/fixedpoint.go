// Package fixedpoint implements deterministic scaled-integer arithmetic.
//
// A ScaledValue is a *big.Int holding a real number multiplied by Scale.
// Every function allocates its result and leaves its arguments untouched.
// Division truncates toward zero.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Scale is the fixed-point scale factor (four decimal digits).
const Scale = 10000

// ErrDomain reports an arithmetic precondition violation: square root of a
// negative value, logarithm of a non-positive value or division by zero.
var ErrDomain = errors.New("arithmetic domain error")

var (
	bigScale = big.NewInt(Scale)
	bigOne   = big.NewInt(1)
	bigTwo   = big.NewInt(2)
)

// New returns v as an unscaled integer.
func New(v int64) *big.Int {
	return big.NewInt(v)
}

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// One returns Scale, the ScaledValue of 1.0.
func One() *big.Int {
	return big.NewInt(Scale)
}

// Scaled returns v multiplied by Scale.
func Scaled(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), bigScale)
}

// FromFloat converts a real number into a ScaledValue, rounding half away from zero.
func FromFloat(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: cannot scale %v", ErrDomain, f)
	}
	r, _ := new(big.Float).SetFloat64(math.Round(f * Scale)).Int(nil)
	return r, nil
}

// ToFloat converts a ScaledValue into its real value. Only for presentation.
func ToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(bigScale)).Float64()
	return f
}

func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Mul multiplies two ScaledValues: a*b/Scale.
func Mul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Quo(r, bigScale)
}

// Div divides two ScaledValues: a*Scale/b.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	r := new(big.Int).Mul(a, bigScale)
	return r.Quo(r, b), nil
}

// MulDiv returns a*b/c without intermediate rounding.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	r := new(big.Int).Mul(a, b)
	return r.Quo(r, c), nil
}

// Sqrt returns the floor square root of an integer using binary search.
func Sqrt(v *big.Int) (*big.Int, error) {
	switch v.Sign() {
	case -1:
		return nil, fmt.Errorf("%w: square root of negative value %s", ErrDomain, v)
	case 0:
		return new(big.Int), nil
	}
	if v.Cmp(bigTwo) < 0 {
		return new(big.Int).Set(v), nil
	}

	// sqrt(v) < 2^ceil(bitlen/2)
	lo := big.NewInt(1)
	hi := new(big.Int).Lsh(bigOne, uint(v.BitLen()+1)/2)
	mid := new(big.Int)
	sq := new(big.Int)
	for lo.Cmp(hi) <= 0 {
		mid.Add(lo, hi)
		mid.Rsh(mid, 1)
		sq.Mul(mid, mid)
		switch sq.Cmp(v) {
		case 0:
			return mid, nil
		case -1:
			lo.Add(mid, bigOne)
		default:
			hi.Sub(mid, bigOne)
		}
	}
	return hi, nil
}

// SqrtScaled returns the square root of a ScaledValue as a ScaledValue.
func SqrtScaled(v *big.Int) (*big.Int, error) {
	return Sqrt(new(big.Int).Mul(v, bigScale))
}

// Log2 returns floor(log2(v)) for a positive integer.
func Log2(v *big.Int) (int, error) {
	if v.Sign() <= 0 {
		return 0, fmt.Errorf("%w: log2 of non-positive value %s", ErrDomain, v)
	}
	return v.BitLen() - 1, nil
}

const (
	log2FracBits  = 32
	log2Precision = 64
)

// log2Fixed returns log2(v) with log2FracBits fractional bits, using the
// binary digit-by-digit algorithm. v must be positive.
func log2Fixed(v *big.Int) *big.Int {
	n := v.BitLen() - 1
	result := new(big.Int).Lsh(big.NewInt(int64(n)), log2FracBits)

	// z = v / 2^n in [1, 2), log2Precision fractional bits
	z := new(big.Int).Lsh(v, log2Precision)
	z.Rsh(z, uint(n))
	two := new(big.Int).Lsh(bigOne, log2Precision+1)
	bit := new(big.Int).Lsh(bigOne, log2FracBits-1)
	for i := 0; i < log2FracBits; i++ {
		z.Mul(z, z)
		z.Rsh(z, log2Precision)
		if z.Cmp(two) >= 0 {
			z.Rsh(z, 1)
			result.Add(result, bit)
		}
		bit.Rsh(bit, 1)
	}
	return result
}

// Log2Scaled returns log2(v/Scale)*Scale for a positive ScaledValue v.
// It uses integer arithmetic only, so results are identical on every node.
func Log2Scaled(v *big.Int) (*big.Int, error) {
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: log2 of non-positive value %s", ErrDomain, v)
	}
	r := new(big.Int).Sub(log2Fixed(v), log2Fixed(bigScale))
	r.Mul(r, bigScale)
	return r.Quo(r, new(big.Int).Lsh(bigOne, log2FracBits)), nil
}

func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func Abs(v *big.Int) *big.Int {
	return new(big.Int).Abs(v)
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	return r.Abs(r)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi *big.Int) *big.Int {
	switch {
	case v.Cmp(lo) < 0:
		return new(big.Int).Set(lo)
	case v.Cmp(hi) > 0:
		return new(big.Int).Set(hi)
	default:
		return new(big.Int).Set(v)
	}
}

// ClampUnit bounds v to [0, Scale].
func ClampUnit(v *big.Int) *big.Int {
	return Clamp(v, new(big.Int), bigScale)
}

// ClampSigned bounds v to [-Scale, Scale].
func ClampSigned(v *big.Int) *big.Int {
	return Clamp(v, new(big.Int).Neg(bigScale), bigScale)
}

func Sum(values []*big.Int) *big.Int {
	s := new(big.Int)
	for _, v := range values {
		s.Add(s, v)
	}
	return s
}

// MaxOf returns the largest element. values must not be empty.
func MaxOf(values []*big.Int) *big.Int {
	m := values[0]
	for _, v := range values[1:] {
		if v.Cmp(m) > 0 {
			m = v
		}
	}
	return new(big.Int).Set(m)
}

// MinOf returns the smallest element. values must not be empty.
func MinOf(values []*big.Int) *big.Int {
	m := values[0]
	for _, v := range values[1:] {
		if v.Cmp(m) < 0 {
			m = v
		}
	}
	return new(big.Int).Set(m)
}

// Mean returns the truncated arithmetic mean.
func Mean(values []*big.Int) (*big.Int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: mean of empty sequence", ErrDomain)
	}
	s := Sum(values)
	return s.Quo(s, big.NewInt(int64(len(values)))), nil
}

// Variance returns the population variance (n*Σv² - (Σv)²) / n², in the
// squared unit of the inputs.
func Variance(values []*big.Int) (*big.Int, error) {
	n := int64(len(values))
	if n == 0 {
		return nil, fmt.Errorf("%w: variance of empty sequence", ErrDomain)
	}
	sum := new(big.Int)
	sumSq := new(big.Int)
	sq := new(big.Int)
	for _, v := range values {
		sum.Add(sum, v)
		sumSq.Add(sumSq, sq.Mul(v, v))
	}
	bn := big.NewInt(n)
	num := new(big.Int).Mul(sumSq, bn)
	num.Sub(num, sq.Mul(sum, sum))
	return num.Quo(num, new(big.Int).Mul(bn, bn)), nil
}

// StdDev returns the floor square root of the population variance, in the
// unit of the inputs. A single element has zero deviation.
func StdDev(values []*big.Int) (*big.Int, error) {
	v, err := Variance(values)
	if err != nil {
		return nil, err
	}
	return Sqrt(v)
}
