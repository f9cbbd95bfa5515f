package fuleeca

import (
	"math"

	"github.com/tuneinsight/lattigo/v4/ring"
)

// Parameters holds the FuLeeca parameters the attack depends on.
type Parameters struct {
	Category         int     // NIST security category (0 for custom sets)
	Q                int64   // prime modulus p
	N                int     // code length n; vectors a, b have length N/2
	KeyWeight        int     // Lee weight of the secret key row
	KeyHammingWeight int     // Hamming weight of the secret key row
	KeySquaredNorm   int64   // squared Euclidean norm of a
	S                float64 // signing scaling factor s
}

var categories = map[int]Parameters{
	1: {Category: 1, Q: 65521, N: 1318, KeyWeight: 31102, KeyHammingWeight: 1212, KeySquaredNorm: 2844258, S: 3.0 / 64},
	3: {Category: 3, Q: 65521, N: 1982, KeyWeight: 46552, KeyHammingWeight: 1848, KeySquaredNorm: 4430100, S: 9.0 / 256},
	5: {Category: 5, Q: 65521, N: 2638, KeyWeight: 61918, KeyHammingWeight: 2638, KeySquaredNorm: 6048442, S: 3.0 / 128},
}

// ParametersForCategory returns the parameter set of a security category.
// Valid categories are 1, 3 and 5.
func ParametersForCategory(category int) (Parameters, error) {
	p, ok := categories[category]
	if !ok {
		return Parameters{}, &ParameterError{Category: category, Reason: "no FuLeeca parameters (valid: 1, 3, 5)"}
	}
	return p, nil
}

// CustomParameters returns a parameter set outside the category table, for
// synthetic or reduced-size workloads.
func CustomParameters(nHalf int, q int64, keySquaredNorm int64) Parameters {
	return Parameters{Q: q, N: 2 * nHalf, KeySquaredNorm: keySquaredNorm}
}

// NHalf returns the length of the key and sample vectors.
func (p Parameters) NHalf() int {
	return p.N / 2
}

// KeyNorm returns the Euclidean norm of the secret vector a.
func (p Parameters) KeyNorm() float64 {
	return math.Sqrt(float64(p.KeySquaredNorm))
}

// Validate checks that the parameter set is usable by the attack.
func (p Parameters) Validate() error {
	if p.N <= 0 || p.N%2 != 0 {
		return &ParameterError{Category: p.Category, Reason: "code length must be positive and even"}
	}
	if p.KeySquaredNorm <= 0 {
		return &ParameterError{Category: p.Category, Reason: "key norm must be positive"}
	}
	if !probablePrime(p.Q) {
		return &ParameterError{Category: p.Category, Reason: "modulus must be an odd prime"}
	}
	return nil
}

// probablePrime is a Miller-Rabin test to the bases 2, 3, 5 and 7, which is
// deterministic below 3215031751.
func probablePrime(q int64) bool {
	if q < 3 || q%2 == 0 {
		return false
	}
	if q >= 3215031751 {
		return false
	}
	n := uint64(q)
	d, s := n-1, 0
	for d%2 == 0 {
		d /= 2
		s++
	}
	for _, base := range []uint64{2, 3, 5, 7} {
		if base%n == 0 {
			continue
		}
		x := ring.ModExp(base, d, n)
		if x == 1 || x == n-1 {
			continue
		}
		composite := true
		for r := 1; r < s; r++ {
			x = x * x % n
			if x == n-1 {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}
