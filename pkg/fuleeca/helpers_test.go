package fuleeca

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// testGenerator returns a synthetic workload of length nHalf.
func testGenerator(t *testing.T, nHalf int, seed string) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultSyntheticConfig(nHalf, []byte(seed)))
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	return g
}

// testSamples draws count signatures from a fresh generator.
func testSamples(t *testing.T, nHalf int, seed string, count int) (*Generator, *SampleSet) {
	t.Helper()
	g := testGenerator(t, nHalf, seed)
	set, err := g.SampleSet(count)
	if err != nil {
		t.Fatalf("Failed to draw samples: %v", err)
	}
	return g, set
}

// shiftedKeySet returns a sample set whose row k is a rotated right by k,
// i.e. the signature of the unit vector at position k.
func shiftedKeySet(t *testing.T, key SecretKey, rows int) *SampleSet {
	t.Helper()
	n := len(key.A)
	data := make([][]int64, rows)
	for k := range data {
		row := make([]int64, n)
		for m := range row {
			row[m] = key.A[((m-k)%n+n)%n]
		}
		data[k] = row
	}
	set, err := NewSampleSet(key, data)
	if err != nil {
		t.Fatalf("Failed to build sample set: %v", err)
	}
	return set
}

// cosine returns |cos| of the angle between v and a.
func cosine(v []float64, a []int64) float64 {
	af := toFloats(a)
	return math.Abs(floats.Dot(v, af)) / (floats.Norm(v, 2) * floats.Norm(af, 2))
}

// lcg is a 64-bit linear congruential generator for fixtures that must not
// change when the synthetic generator does.
type lcg struct{ s uint64 }

func (l *lcg) intn(lo, hi int64) int64 {
	l.s = l.s*6364136223846793005 + 1442695040888963407
	return lo + int64((l.s>>33)%uint64(hi-lo+1))
}

// swappedKeyFixture returns a length 256 key dominated by a[0], 60 of its
// signatures with coefficients in [-3, 3], and a typical candidate that
// differs from the key by twelve swaps of same-sign coordinates whose
// magnitudes differ by one. With this candidate every signature rounds
// wrongly, two of them to a singular circulant, while the average of the
// rounded solutions projects onto a candidate that recovers the key.
func swappedKeyFixture(t *testing.T) (key, candidate []int64, set *SampleSet) {
	t.Helper()
	const n, rows = 256, 60
	r := &lcg{s: 4}
	key = make([]int64, n)
	for i := range key {
		key[i] = r.intn(-2, 2)
	}
	key[0] += 44

	data := make([][]int64, rows)
	for j := range data {
		x := make([]int64, n)
		for i := range x {
			x[i] = r.intn(-3, 3)
		}
		v := make([]int64, n)
		for k := range v {
			for i := range x {
				v[k] += x[i] * key[((k-i)%n+n)%n]
			}
		}
		data[j] = v
	}
	set, err := NewSampleSet(SecretKey{A: key}, data)
	if err != nil {
		t.Fatalf("Failed to build sample set: %v", err)
	}

	abs := func(v int64) int64 {
		if v < 0 {
			return -v
		}
		return v
	}
	candidate = append([]int64(nil), key...)
	used := make(map[int]bool)
	swaps := 0
	for i := 1; i < n && swaps < 12; i++ {
		for j := i + 1; j < n && swaps < 12; j++ {
			if used[i] || used[j] || key[i] == 0 || (key[i] > 0) != (key[j] > 0) || abs(key[i])+1 != abs(key[j]) {
				continue
			}
			candidate[i], candidate[j] = key[j], key[i]
			used[i], used[j] = true, true
			swaps++
		}
	}
	if swaps != 12 {
		t.Fatalf("found %d swaps, want 12", swaps)
	}
	return key, candidate, set
}
