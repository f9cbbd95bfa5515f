package fuleeca

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/circulant"
)

// BestRoundingOutcome is the result of SolveBestRounding.
type BestRoundingOutcome struct {
	Estimate []float64 // reconstructed key before rounding
	Key      []int64   // rounded estimate
	Accepted bool
}

// SolveBestRounding reconstructs the key from the single most trustworthy
// coordinate of each of the nHalf samples whose x' = v ⊛ candidate⁻¹ lies
// closest to an integer vector.
//
// Sample i contributes x_i[j] = Σ_m v_i[m+j]·b[-m] where b = a⁻¹, which is
// one linear equation in the shifted inverse key. Solving the nHalf
// equations and inverting the resulting circulant gives a.
func (s *ExactSolver) SolveBestRounding(candidate []float64, samples *mat.Dense) (*BestRoundingOutcome, error) {
	if samples == nil {
		return nil, errors.New("no samples")
	}
	rows, n := samples.Dims()
	if len(candidate) != n {
		return nil, fmt.Errorf("candidate has length %d, samples %d", len(candidate), n)
	}
	if rows < n {
		return nil, fmt.Errorf("best rounding needs %d samples, have %d", n, rows)
	}

	t := circulant.NewTransform(n)
	cs := t.Spectrum(nil, candidate)
	if circulant.Singular(cs) {
		return nil, fmt.Errorf("candidate circulant: %w", ErrDegenerate)
	}

	type rounding struct {
		sample int
		dist   float64
		coord  int
		value  float64
	}
	roundings := make([]rounding, rows)
	vs := make([]complex128, n)
	x := make([]float64, n)
	for i := 0; i < rows; i++ {
		t.Spectrum(vs, samples.RawRowView(i))
		if _, _, err := circulant.Divide(vs, vs, cs, false); err != nil {
			return nil, fmt.Errorf("candidate circulant: %w", ErrDegenerate)
		}
		t.Real(x, vs)

		r := rounding{sample: i, coord: 0, dist: 0}
		bestErr := math.Inf(1)
		for j, f := range x {
			e := math.Abs(f - math.RoundToEven(f))
			r.dist += e * e
			if e < bestErr {
				bestErr = e
				r.coord = j
				r.value = math.RoundToEven(f)
			}
		}
		roundings[i] = r
	}
	sort.SliceStable(roundings, func(i, j int) bool { return roundings[i].dist < roundings[j].dist })

	shifts := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		r := roundings[i]
		v := samples.RawRowView(r.sample)
		row := shifts.RawRowView(i)
		for m := 0; m < n; m++ {
			row[m] = v[(m+r.coord)%n]
		}
		rhs.SetVec(i, r.value)
	}

	var res mat.VecDense
	if err := res.SolveVec(shifts, rhs); err != nil {
		return nil, fmt.Errorf("best rounding system: %w", ErrDegenerate)
	}

	// res[m] = b[-m], so its transposed dense circulant is Dense(a)⁻¹.
	var inv mat.Dense
	if err := inv.Inverse(circulant.Dense(res.RawVector().Data).T()); err != nil {
		return nil, fmt.Errorf("inverse key circulant: %w", ErrDegenerate)
	}

	estimate := mat.Row(nil, 0, &inv)
	rounded := circulant.Round(nil, estimate)
	return &BestRoundingOutcome{
		Estimate: estimate,
		Key:      toInts(rounded),
		Accepted: s.Accept(estimate, rounded),
	}, nil
}
