package fuleeca

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/circulant"
)

func TestSecondMoment(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	const rows, n = 2500, 5 // more rows than one chunk
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = float64(rnd.Intn(11) - 5)
	}
	samples := mat.NewDense(rows, n, data)

	m, err := SecondMoment(samples)
	if err != nil {
		t.Fatalf("SecondMoment failed: %v", err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var want float64
			for r := 0; r < rows; r++ {
				want += samples.At(r, i) * samples.At(r, j)
			}
			want /= rows
			if math.Abs(m.At(i, j)-want) > 1e-9 {
				t.Errorf("M[%d][%d] = %v, want %v", i, j, m.At(i, j), want)
			}
		}
	}

	if _, err := SecondMoment(nil); err == nil {
		t.Error("expected error without samples")
	}
}

func TestCorrectBias_ExactMoments(t *testing.T) {
	a := []int64{3, -1, 0, 2, -2, 1, 1}
	bias := BiasTable{2.0 / 3, 2, 4, 20.0 / 3, 2, 4, 2.0 / 3}
	n := len(a)

	// E[vᵀv] = Aᵀ·diag(d)·A for v = x·A.
	A := circulant.Dense(toFloats(a))
	var tmp, expected mat.Dense
	tmp.Mul(A.T(), mat.NewDiagDense(n, bias))
	expected.Mul(&tmp, A)
	m := mat.NewSymDense(n, expected.RawMatrix().Data)

	aa, err := CorrectBias(m, bias)
	if err != nil {
		t.Fatalf("CorrectBias failed: %v", err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := float64(a[i] * a[j])
			if math.Abs(aa.At(i, j)-want) > 1e-8 {
				t.Errorf("aa[%d][%d] = %v, want %v", i, j, aa.At(i, j), want)
			}
		}
	}

	spec, err := ExtractDirections(aa, 3)
	if err != nil {
		t.Fatalf("ExtractDirections failed: %v", err)
	}
	if len(spec.Directions) != 3 || len(spec.Values) != n {
		t.Fatalf("got %d directions and %d values", len(spec.Directions), len(spec.Values))
	}
	if c := cosine(spec.Directions[0], a); c < 1-1e-9 {
		t.Errorf("leading direction cosine = %v, want 1", c)
	}
	norm2 := ProfileFromKey(a).SquaredNorm()
	if math.Abs(spec.Values[0]-float64(norm2)) > 1e-8 {
		t.Errorf("leading singular value = %v, want %d", spec.Values[0], norm2)
	}
	if spec.Values[1] > 1e-8 {
		t.Errorf("second singular value = %v, want 0", spec.Values[1])
	}
}

func TestCorrectBias_Errors(t *testing.T) {
	m := mat.NewSymDense(6, nil)
	if _, err := CorrectBias(m, BiasTable{1, 1, 1, 1, 1, 1}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("constant bias: expected ErrDegenerate, got %v", err)
	}
	if _, err := CorrectBias(m, BiasTable{1, 2, 3}); err == nil {
		t.Error("expected error for a bias table of the wrong length")
	}
}

func TestExtractDirections_Clamp(t *testing.T) {
	spec, err := ExtractDirections(mat.NewDense(2, 2, []float64{2, 0, 0, 1}), 5)
	if err != nil {
		t.Fatalf("ExtractDirections failed: %v", err)
	}
	if len(spec.Directions) != 2 {
		t.Errorf("got %d directions, want 2", len(spec.Directions))
	}
	if math.Abs(math.Abs(spec.Directions[0][0])-1) > 1e-12 {
		t.Errorf("leading direction = %v, want ±e0", spec.Directions[0])
	}
}

func TestEstimateDirections_Synthetic(t *testing.T) {
	const nHalf, count = 31, 3000
	g, set := testSamples(t, nHalf, "spectral", count)

	spec, err := EstimateDirections(set.Samples, g.Bias(), DefaultCandidates)
	if err != nil {
		t.Fatalf("EstimateDirections failed: %v", err)
	}
	c := cosine(spec.Directions[0], g.Key().A)
	t.Logf("S=%d, n=%d: leading direction cosine %.4f", count, nHalf, c)
	if c <= 0.9 {
		t.Errorf("leading direction cosine = %.4f, want > 0.9", c)
	}
}
