package circulant

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a circulant has a (numerically) zero eigenvalue
// and an exact solve was requested.
var ErrSingular = errors.New("circulant: singular matrix")

// eps is the float64 machine epsilon.
const eps = 2.220446049250313e-16

// Threshold returns the magnitude at or below which an eigenvalue of the
// spectrum is treated as zero: max|λ|·n·eps.
func Threshold(spectrum []complex128) float64 {
	var max float64
	for _, c := range spectrum {
		if a := cmplx.Abs(c); a > max {
			max = a
		}
	}
	return max * float64(len(spectrum)) * eps
}

// Singular reports whether any eigenvalue of the spectrum is numerically zero.
func Singular(spectrum []complex128) bool {
	tol := Threshold(spectrum)
	for _, c := range spectrum {
		if cmplx.Abs(c) <= tol {
			return true
		}
	}
	return false
}

// Divide sets dst[k] = num[k]/den[k].
//
// When lstsq is false a numerically zero den[k] yields ErrSingular. When it is
// true the component is set to zero instead, which is the minimum-norm least
// squares solution of the circulant system; the returned flag reports whether
// that happened.
func Divide(dst, num, den []complex128, lstsq bool) ([]complex128, bool, error) {
	if len(num) != len(den) {
		panic("circulant: spectrum length mismatch")
	}
	if dst == nil {
		dst = make([]complex128, len(num))
	}
	tol := Threshold(den)
	deficient := false
	for k := range den {
		if cmplx.Abs(den[k]) <= tol {
			if !lstsq {
				return nil, true, ErrSingular
			}
			deficient = true
			dst[k] = 0
			continue
		}
		dst[k] = num[k] / den[k]
	}
	return dst, deficient, nil
}

// Convolve returns x ⊛ c.
func Convolve(t *Transform, x, c []float64) []float64 {
	xs := t.Spectrum(nil, x)
	cs := t.Spectrum(nil, c)
	for k := range xs {
		xs[k] *= cs[k]
	}
	return t.Real(nil, xs)
}

// Solve returns y such that c ⊛ y = b (equivalently y ⊛ c = b). With lstsq
// set, a rank-deficient c gives the least squares solution and the returned
// flag is true; otherwise it fails with ErrSingular.
func Solve(t *Transform, c, b []float64, lstsq bool) ([]float64, bool, error) {
	cs := t.Spectrum(nil, c)
	bs := t.Spectrum(nil, b)
	q, deficient, err := Divide(bs, bs, cs, lstsq)
	if err != nil {
		return nil, deficient, err
	}
	return t.Real(nil, q), deficient, nil
}

// Dense returns the n×n matrix whose row i is c cyclically shifted right by
// i, so that x·Dense(c) = x ⊛ c.
func Dense(c []float64) *mat.Dense {
	n := len(c)
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		row := d.RawRowView(i)
		for k := 0; k < n; k++ {
			row[k] = c[mod(k-i, n)]
		}
	}
	return d
}

// Round rounds every coordinate to the nearest integer, ties to even.
func Round(dst []float64, v []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(v))
	}
	for i, f := range v {
		dst[i] = math.RoundToEven(f)
	}
	return dst
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
