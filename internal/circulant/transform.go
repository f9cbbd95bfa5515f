// Package circulant implements the circulant algebra used by the attack:
// discrete Fourier transforms of arbitrary length, cyclic convolution,
// circulant system solving and the dense circulant form.
//
// Every circulant in this package is described by a single vector c and acts
// on row vectors by cyclic convolution:
//
//	(x ⊛ c)[k] = Σ_i x[i]·c[(k-i) mod n]
//
// which is x·Dense(c). The eigenvalues of that map are the DFT coefficients
// of c, so inversion and solving reduce to pointwise division of spectra.
package circulant

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform is a DFT plan of a fixed length.
//
// Lengths whose prime factors are all 2, 3 or 5 use gonum's FFT directly.
// Other lengths (the FuLeeca half-lengths 659, 991 and 1319 are prime) are
// computed with Bluestein's chirp-z algorithm on top of a power-of-two FFT.
//
// A Transform owns scratch buffers and is not safe for concurrent use.
type Transform struct {
	n int

	direct *fourier.CmplxFFT

	// Bluestein state.
	m      int
	fft    *fourier.CmplxFFT
	chirp  []complex128
	kernel []complex128
	work   []complex128
	conv   []complex128

	in  []complex128
	out []complex128
}

// NewTransform returns a DFT plan for sequences of length n.
func NewTransform(n int) *Transform {
	if n <= 0 {
		panic("circulant: non-positive transform length")
	}
	t := &Transform{
		n:   n,
		in:  make([]complex128, n),
		out: make([]complex128, n),
	}
	if smooth(n) {
		t.direct = fourier.NewCmplxFFT(n)
		return t
	}

	m := 1
	for m < 2*n-1 {
		m <<= 1
	}
	t.m = m
	t.fft = fourier.NewCmplxFFT(m)
	t.chirp = make([]complex128, n)
	for j := 0; j < n; j++ {
		// j² mod 2n keeps the phase argument small for large n.
		jj := (int64(j) * int64(j)) % int64(2*n)
		t.chirp[j] = cmplx.Exp(complex(0, -math.Pi*float64(jj)/float64(n)))
	}
	b := make([]complex128, m)
	for j := 0; j < n; j++ {
		c := cmplx.Conj(t.chirp[j])
		b[j] = c
		if j > 0 {
			b[m-j] = c
		}
	}
	t.kernel = t.fft.Coefficients(nil, b)
	t.work = make([]complex128, m)
	t.conv = make([]complex128, m)
	return t
}

// Len returns the length of the sequences handled by t.
func (t *Transform) Len() int { return t.n }

// Forward computes X[k] = Σ_j x[j]·exp(-2πi·jk/n) into dst, allocating it
// when nil.
func (t *Transform) Forward(dst, x []complex128) []complex128 {
	if len(x) != t.n {
		panic("circulant: sequence length mismatch")
	}
	if dst == nil {
		dst = make([]complex128, t.n)
	}
	if t.direct != nil {
		copy(t.in, x)
		t.direct.Coefficients(t.out, t.in)
		copy(dst, t.out)
		return dst
	}

	for j := range t.work {
		t.work[j] = 0
	}
	for j := 0; j < t.n; j++ {
		t.work[j] = x[j] * t.chirp[j]
	}
	t.fft.Coefficients(t.conv, t.work)
	for k := range t.conv {
		t.conv[k] *= t.kernel[k]
	}
	t.fft.Sequence(t.work, t.conv)
	scale := complex(1/float64(t.m), 0)
	for k := 0; k < t.n; k++ {
		dst[k] = t.chirp[k] * t.work[k] * scale
	}
	return dst
}

// Inverse computes the normalized inverse DFT of X into dst, allocating it
// when nil. Inverse(Forward(x)) == x up to rounding.
func (t *Transform) Inverse(dst, X []complex128) []complex128 {
	if len(X) != t.n {
		panic("circulant: sequence length mismatch")
	}
	if dst == nil {
		dst = make([]complex128, t.n)
	}
	conj := make([]complex128, t.n)
	for k, c := range X {
		conj[k] = cmplx.Conj(c)
	}
	t.Forward(dst, conj)
	scale := 1 / float64(t.n)
	for j, c := range dst {
		dst[j] = complex(real(c)*scale, -imag(c)*scale)
	}
	return dst
}

// Spectrum returns the DFT of the real sequence v.
func (t *Transform) Spectrum(dst []complex128, v []float64) []complex128 {
	if len(v) != t.n {
		panic("circulant: sequence length mismatch")
	}
	x := make([]complex128, t.n)
	for i, f := range v {
		x[i] = complex(f, 0)
	}
	return t.Forward(dst, x)
}

// Real returns the real part of the inverse DFT of X.
func (t *Transform) Real(dst []float64, X []complex128) []float64 {
	if dst == nil {
		dst = make([]float64, t.n)
	}
	seq := t.Inverse(nil, X)
	for i, c := range seq {
		dst[i] = real(c)
	}
	return dst
}

// smooth reports whether n has no prime factor larger than 5.
func smooth(n int) bool {
	for _, p := range []int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}
