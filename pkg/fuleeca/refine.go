package fuleeca

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Profile is the ascending list of coefficient magnitudes of a typical key.
// FuLeeca keys of one category share it up to permutation and signs.
type Profile []int64

// ProfileFromKey returns the sorted magnitudes of a.
func ProfileFromKey(a []int64) Profile {
	p := make(Profile, len(a))
	for i, v := range a {
		if v < 0 {
			v = -v
		}
		p[i] = v
	}
	sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
	return p
}

// ReadProfile parses whitespace separated magnitudes. The result is sorted.
func ReadProfile(r io.Reader) (Profile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	var p Profile
	for scanner.Scan() {
		v, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("profile entry %d: %w", len(p), err)
		}
		if v < 0 {
			v = -v
		}
		p = append(p, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if len(p) == 0 {
		return nil, ErrNoProfile
	}
	sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
	return p, nil
}

// LoadProfile reads a profile file.
func LoadProfile(path string) (Profile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer file.Close()
	return ReadProfile(file)
}

// WriteProfile writes one magnitude per line.
func WriteProfile(w io.Writer, p Profile) error {
	bw := bufio.NewWriter(w)
	for _, v := range p {
		if _, err := bw.WriteString(strconv.FormatInt(v, 10) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SquaredNorm returns the squared Euclidean norm of any key with profile p.
func (p Profile) SquaredNorm() int64 {
	var s int64
	for _, v := range p {
		s += v * v
	}
	return s
}

// Refiner turns approximate directions into key-shaped candidates.
type Refiner struct {
	Profile Profile
	Norm    float64 // Euclidean norm of a typical key
}

// NewRefiner creates a refiner for the given profile and key norm.
func NewRefiner(profile Profile, norm float64) *Refiner {
	return &Refiner{Profile: profile, Norm: norm}
}

// Scale multiplies a unit direction by the key norm.
func (r *Refiner) Scale(direction []float64) []float64 {
	out := make([]float64, len(direction))
	floats.ScaleTo(out, r.Norm, direction)
	return out
}

// Project replaces the magnitudes of v by the profile: the coordinate with
// the r-th smallest |v| (ties in index order) receives sign(v)·Profile[r].
// Zero coordinates count as positive.
func (r *Refiner) Project(v []float64) ([]int64, error) {
	if len(v) != len(r.Profile) {
		return nil, fmt.Errorf("candidate has length %d, profile %d", len(v), len(r.Profile))
	}
	order := make([]int, len(v))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(v[order[i]]) < math.Abs(v[order[j]])
	})

	out := make([]int64, len(v))
	for rank, idx := range order {
		if v[idx] < 0 {
			out[idx] = -r.Profile[rank]
		} else {
			out[idx] = r.Profile[rank]
		}
	}
	return out, nil
}

// Refine scales a unit direction and projects it onto the profile.
func (r *Refiner) Refine(direction []float64) (scaled []float64, typical []int64, err error) {
	scaled = r.Scale(direction)
	typical, err = r.Project(scaled)
	return scaled, typical, err
}

// Distance returns min(‖c − a‖, ‖c + a‖).
func Distance(c []float64, a []int64) float64 {
	af := toFloats(a)
	d := floats.Distance(c, af, 2)
	floats.Scale(-1, af)
	if dn := floats.Distance(c, af, 2); dn < d {
		d = dn
	}
	return d
}

// MatchesGroundTruth reports whether key equals ±truth exactly. It is
// independent of the solver's acceptance test.
func MatchesGroundTruth(key, truth []int64) bool {
	if len(key) != len(truth) || len(key) == 0 {
		return false
	}
	plus, minus := true, true
	for i := range key {
		if key[i] != truth[i] {
			plus = false
		}
		if key[i] != -truth[i] {
			minus = false
		}
	}
	return plus || minus
}

func toFloats(v []int64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toInts(v []float64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(math.RoundToEven(x))
	}
	return out
}
