package fuleeca

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/tuneinsight/lattigo/v4/utils"
	"golang.org/x/crypto/sha3"
	"gonum.org/v1/gonum/mat"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/circulant"
)

// SyntheticConfig describes a synthetic signing workload.
//
// Keys are uniform in [-KeyBound, KeyBound] unless KeySquaredNorm is set, in
// which case both key halves have exactly that squared norm, random signs and
// magnitudes spread up to a common scale. Coefficient i of every signing
// vector x is uniform in [-r_i, r_i] with a per-coordinate radius r_i drawn
// once from [1, CoefficientBound], so E[x_i²] = r_i(r_i+1)/3 is a known,
// non-constant bias table. Signing vectors whose signature leaves
// (-q/2, q/2] are discarded and redrawn.
type SyntheticConfig struct {
	Category         int   // reported category (0 for custom)
	NHalf            int   // vector length
	Q                int64 // modulus
	KeyBound         int64
	KeySquaredNorm   int64 // exact ‖a‖², 0 for uniform keys
	CoefficientBound int64
	Seed             []byte
}

// DefaultSyntheticConfig returns a configuration for vectors of length nHalf.
func DefaultSyntheticConfig(nHalf int, seed []byte) SyntheticConfig {
	return SyntheticConfig{
		NHalf:            nHalf,
		Q:                65521,
		KeyBound:         3,
		CoefficientBound: 4,
		Seed:             seed,
	}
}

// SyntheticConfigForCategory sizes a workload like a security category.
func SyntheticConfigForCategory(category int, seed []byte) (SyntheticConfig, error) {
	p, err := ParametersForCategory(category)
	if err != nil {
		return SyntheticConfig{}, err
	}
	cfg := DefaultSyntheticConfig(p.NHalf(), seed)
	cfg.Category = category
	cfg.Q = p.Q
	cfg.KeySquaredNorm = p.KeySquaredNorm
	return cfg, nil
}

// maxDraws bounds the rejection loops for keys, radii and signing vectors.
const maxDraws = 64

// keyResolution is the number of magnitude levels drawn before a norm-exact
// key is scaled.
const keyResolution = 1 << 16

var errRedraw = errors.New("redraw")

// Generator produces a deterministic stream of synthetic signatures.
type Generator struct {
	cfg     SyntheticConfig
	key     SecretKey
	radius  []int64
	bias    BiasTable
	wrapped int

	t      *circulant.Transform
	as, bs []complex128
	coeffs io.Reader
	x      []float64
	xs, ys []complex128
	y      []float64
}

// NewGenerator draws the key and the radii from the seed.
func NewGenerator(cfg SyntheticConfig) (*Generator, error) {
	if cfg.NHalf <= 1 {
		return nil, fmt.Errorf("vector length must be at least 2, got %d", cfg.NHalf)
	}
	if cfg.Q < 3 {
		return nil, fmt.Errorf("modulus must be at least 3, got %d", cfg.Q)
	}
	if cfg.CoefficientBound < 1 || (cfg.KeySquaredNorm <= 0 && cfg.KeyBound < 1) {
		return nil, fmt.Errorf("bounds must be positive")
	}
	if cfg.KeySquaredNorm <= 0 && 2*cfg.KeyBound >= cfg.Q {
		return nil, fmt.Errorf("key coefficients up to %d do not fit modulus %d", cfg.KeyBound, cfg.Q)
	}

	keyStream, err := newStream(cfg.Seed, "key")
	if err != nil {
		return nil, err
	}
	radiusStream, err := newStream(cfg.Seed, "radius")
	if err != nil {
		return nil, err
	}
	coeffStream, err := newStream(cfg.Seed, "coefficients")
	if err != nil {
		return nil, err
	}

	n := cfg.NHalf
	g := &Generator{
		cfg:    cfg,
		t:      circulant.NewTransform(n),
		coeffs: coeffStream,
		x:      make([]float64, n),
		xs:     make([]complex128, n),
		ys:     make([]complex128, n),
		y:      make([]float64, n),
	}

	if g.key.A, g.as, err = g.drawKey(keyStream); err != nil {
		return nil, err
	}
	if g.key.B, g.bs, err = g.drawKey(keyStream); err != nil {
		return nil, err
	}

	for draw := 0; ; draw++ {
		if draw == maxDraws {
			return nil, fmt.Errorf("no invertible bias table after %d draws", maxDraws)
		}
		g.radius = make([]int64, n)
		g.bias = make(BiasTable, n)
		for i := range g.radius {
			r, err := uniform(radiusStream, 1, cfg.CoefficientBound)
			if err != nil {
				return nil, err
			}
			g.radius[i] = r
			g.bias[i] = float64(r*(r+1)) / 3
		}
		if !circulant.Singular(g.t.Spectrum(nil, g.bias)) {
			break
		}
	}
	return g, nil
}

// drawKey draws a key whose circulant is comfortably invertible.
func (g *Generator) drawKey(stream io.Reader) ([]int64, []complex128, error) {
	for draw := 0; draw < maxDraws; draw++ {
		var key []int64
		var err error
		if g.cfg.KeySquaredNorm > 0 {
			key, err = normKey(stream, g.cfg.NHalf, g.cfg.KeySquaredNorm)
		} else {
			key, err = boundedKey(stream, g.cfg.NHalf, g.cfg.KeyBound)
		}
		if errors.Is(err, errRedraw) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for _, v := range key {
			if !g.fits(v) {
				return nil, nil, fmt.Errorf("key coefficient %d does not fit modulus %d", v, g.cfg.Q)
			}
		}

		spec := g.t.Spectrum(nil, toFloats(key))
		minAbs := math.Inf(1)
		for _, c := range spec {
			if a := math.Hypot(real(c), imag(c)); a < minAbs {
				minAbs = a
			}
		}
		if minAbs >= 1 {
			return key, spec, nil
		}
	}
	return nil, nil, fmt.Errorf("no well-conditioned key after %d draws", maxDraws)
}

func boundedKey(stream io.Reader, n int, bound int64) ([]int64, error) {
	key := make([]int64, n)
	for i := range key {
		v, err := uniform(stream, -bound, bound)
		if err != nil {
			return nil, err
		}
		key[i] = v
	}
	return key, nil
}

// normKey draws a key with squared norm exactly target. Magnitudes are
// uniform levels scaled down to just below the target, then raised by one
// at a time: at random coordinates while the gap is wide, and at the
// largest coordinate that still fits once it is narrow.
func normKey(stream io.Reader, n int, target int64) ([]int64, error) {
	levels := make([]float64, n)
	negative := make([]bool, n)
	var sum float64
	for i := range levels {
		u, err := uniform(stream, 0, keyResolution)
		if err != nil {
			return nil, err
		}
		sign, err := uniform(stream, 0, 1)
		if err != nil {
			return nil, err
		}
		levels[i] = float64(u)
		negative[i] = sign == 1
		sum += levels[i] * levels[i]
	}
	if sum == 0 {
		return nil, errRedraw
	}

	scale := math.Sqrt(float64(target) / sum)
	mags := make([]int64, n)
	var norm, largest int64
	for i, u := range levels {
		mags[i] = int64(math.Floor(scale * u))
		norm += mags[i] * mags[i]
		if mags[i] > largest {
			largest = mags[i]
		}
	}
	if norm > target {
		return nil, errRedraw
	}

	for target-norm > 2*largest+1 {
		i, err := uniform(stream, 0, int64(n-1))
		if err != nil {
			return nil, err
		}
		norm += 2*mags[i] + 1
		mags[i]++
		if mags[i] > largest {
			largest = mags[i]
		}
	}
	for norm < target {
		best := -1
		for i, m := range mags {
			if 2*m+1 <= target-norm && (best < 0 || m > mags[best]) {
				best = i
			}
		}
		if best < 0 {
			return nil, errRedraw
		}
		norm += 2*mags[best] + 1
		mags[best]++
	}

	for i, neg := range negative {
		if neg {
			mags[i] = -mags[i]
		}
	}
	return mags, nil
}

// Key returns the secret key.
func (g *Generator) Key() SecretKey { return g.key }

// Bias returns the exact bias table of the signing distribution.
func (g *Generator) Bias() BiasTable { return g.bias }

// Profile returns the magnitude profile of the secret vector a.
func (g *Generator) Profile() Profile { return ProfileFromKey(g.key.A) }

// Params returns parameters matching the generated key.
func (g *Generator) Params() Parameters {
	p := CustomParameters(g.cfg.NHalf, g.cfg.Q, g.Profile().SquaredNorm())
	p.Category = g.cfg.Category
	return p
}

// Wrapped returns how many signing vectors were discarded because their
// signature did not fit (-q/2, q/2].
func (g *Generator) Wrapped() int { return g.wrapped }

// Next draws one signature (v1, v2) = (x ⊛ a, x ⊛ b), centered.
func (g *Generator) Next() (v1, v2 []int64, err error) {
	for draw := 0; draw < maxDraws; draw++ {
		for i := range g.x {
			r := g.radius[i]
			c, err := uniform(g.coeffs, -r, r)
			if err != nil {
				return nil, nil, err
			}
			g.x[i] = float64(c)
		}
		g.t.Spectrum(g.xs, g.x)
		v1, v2 = g.mul(g.as), g.mul(g.bs)
		if g.fitsAll(v1) && g.fitsAll(v2) {
			return v1, v2, nil
		}
		g.wrapped++
	}
	return nil, nil, fmt.Errorf("no signature within modulus %d after %d draws", g.cfg.Q, maxDraws)
}

// fits reports whether v is its own centered residue.
func (g *Generator) fits(v int64) bool {
	return center(g.residue(v), g.cfg.Q) == v
}

func (g *Generator) fitsAll(row []int64) bool {
	for _, v := range row {
		if !g.fits(v) {
			return false
		}
	}
	return true
}

func (g *Generator) mul(spec []complex128) []int64 {
	for k := range g.xs {
		g.ys[k] = g.xs[k] * spec[k]
	}
	g.t.Real(g.y, g.ys)
	return toInts(g.y)
}

// SampleSet draws count signatures into an in-memory sample set.
func (g *Generator) SampleSet(count int) (*SampleSet, error) {
	set := &SampleSet{Key: g.key}
	if count <= 0 {
		return set, nil
	}
	data := make([]float64, 0, count*g.cfg.NHalf)
	for i := 0; i < count; i++ {
		v1, _, err := g.Next()
		if err != nil {
			return nil, err
		}
		for _, v := range v1 {
			data = append(data, float64(v))
		}
	}
	set.Samples = mat.NewDense(count, g.cfg.NHalf, data)
	return set, nil
}

// WriteCSV writes the key and count signatures in the comma separated sample
// layout, with every value reduced into [0, q).
func (g *Generator) WriteCSV(w io.Writer, count int) error {
	bw := bufio.NewWriter(w)
	writeRow := func(row []int64) error {
		buf := make([]byte, 0, 8*len(row))
		for i, v := range row {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendInt(buf, g.residue(v), 10)
		}
		buf = append(buf, '\n')
		_, err := bw.Write(buf)
		return err
	}

	if err := writeRow(g.key.A); err != nil {
		return err
	}
	if err := writeRow(g.key.B); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		v1, v2, err := g.Next()
		if err != nil {
			return err
		}
		if err := writeRow(v1); err != nil {
			return err
		}
		if err := writeRow(v2); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteJSON writes the key and count signatures in the JSON sample layout.
func (g *Generator) WriteJSON(w io.Writer, count int) error {
	src := jsonSource{
		A:          g.residues(g.key.A),
		B:          g.residues(g.key.B),
		Signatures: make([][][]int64, 0, count),
	}
	for i := 0; i < count; i++ {
		v1, v2, err := g.Next()
		if err != nil {
			return err
		}
		src.Signatures = append(src.Signatures, [][]int64{g.residues(v1), g.residues(v2)})
	}
	return json.NewEncoder(w).Encode(src)
}

func (g *Generator) residue(v int64) int64 {
	v %= g.cfg.Q
	if v < 0 {
		v += g.cfg.Q
	}
	return v
}

func (g *Generator) residues(row []int64) []int64 {
	out := make([]int64, len(row))
	for i, v := range row {
		out[i] = g.residue(v)
	}
	return out
}

// newStream derives an independent keyed PRNG per purpose from the seed.
func newStream(seed []byte, label string) (io.Reader, error) {
	key := make([]byte, 32)
	sha3.ShakeSum256(key, append([]byte(label+"/"), seed...))
	prng, err := utils.NewKeyedPRNG(key)
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", label, err)
	}
	return bufio.NewReaderSize(prng, 4096), nil
}

// uniform returns an integer uniform in [lo, hi] by rejection sampling.
func uniform(r io.Reader, lo, hi int64) (int64, error) {
	span := uint64(hi - lo + 1)
	threshold := (math.MaxUint64 / span) * span
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, fmt.Errorf("prng read: %w", err)
		}
		word := binary.LittleEndian.Uint64(buf[:])
		if word < threshold {
			return lo + int64(word%span), nil
		}
	}
}
