package fuleeca

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/circulant"
)

// DefaultCandidates is the number of leading singular directions tried.
const DefaultCandidates = 5

// momentChunk is the number of samples folded into each rank-k update.
const momentChunk = 1024

// Spectrum is the output of the spectral extractor.
type Spectrum struct {
	Directions [][]float64 // unit right singular vectors, strongest first
	Values     []float64   // all singular values, descending
}

// SecondMoment returns the empirical second moment (1/S)·Σ vᵢᵀvᵢ of the
// sample rows.
func SecondMoment(samples *mat.Dense) (*mat.SymDense, error) {
	if samples == nil {
		return nil, errors.New("no samples")
	}
	rows, n := samples.Dims()
	m := mat.NewSymDense(n, nil)
	for r0 := 0; r0 < rows; r0 += momentChunk {
		r1 := r0 + momentChunk
		if r1 > rows {
			r1 = rows
		}
		chunk := samples.Slice(r0, r1, 0, n)
		m.SymRankK(m, 1, chunk.T())
	}
	m.ScaleSym(1/float64(rows), m)
	return m, nil
}

// CorrectBias removes the signing-vector bias from the second moment.
//
// In expectation M = Aᵀ·diag(d)·A with A the circulant of the key, so every
// toric diagonal c_j[i] = M[i, i+j] satisfies d ⊛ p_j = c_j with
// p_j[i] = a[i]·a[i+j]. Solving those n circulant systems yields aa ≈ aᵀa.
func CorrectBias(m mat.Symmetric, bias BiasTable) (*mat.Dense, error) {
	n := m.SymmetricDim()
	if len(bias) != n {
		return nil, fmt.Errorf("bias table has %d entries, moment matrix is %d×%d", len(bias), n, n)
	}

	t := circulant.NewTransform(n)
	ds := t.Spectrum(nil, bias)
	if circulant.Singular(ds) {
		return nil, fmt.Errorf("bias circulant: %w", ErrDegenerate)
	}

	aa := mat.NewDense(n, n, nil)
	diag := make([]float64, n)
	cs := make([]complex128, n)
	p := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			diag[i] = m.At(i, (i+j)%n)
		}
		t.Spectrum(cs, diag)
		if _, _, err := circulant.Divide(cs, cs, ds, false); err != nil {
			return nil, fmt.Errorf("bias circulant: %w", ErrDegenerate)
		}
		t.Real(p, cs)
		for i := 0; i < n; i++ {
			aa.Set(i, (i+j)%n, p[i])
		}
	}
	return aa, nil
}

// ExtractDirections returns the k leading right singular vectors of aa.
func ExtractDirections(aa mat.Matrix, k int) (*Spectrum, error) {
	var svd mat.SVD
	if ok := svd.Factorize(aa, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}
	values := svd.Values(nil)

	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	if k > cols {
		k = cols
	}
	spec := &Spectrum{Values: values, Directions: make([][]float64, k)}
	for i := 0; i < k; i++ {
		spec.Directions[i] = mat.Col(nil, i, &v)
	}
	return spec, nil
}

// EstimateDirections runs the whole spectral stage on a sample set.
func EstimateDirections(samples *mat.Dense, bias BiasTable, k int) (*Spectrum, error) {
	m, err := SecondMoment(samples)
	if err != nil {
		return nil, err
	}
	aa, err := CorrectBias(m, bias)
	if err != nil {
		return nil, err
	}
	return ExtractDirections(aa, k)
}
