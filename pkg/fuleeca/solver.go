package fuleeca

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/circulant"
)

// TieBreak selects which accepting sample wins when several accept in one
// pass.
type TieBreak int

const (
	// FirstAccepted keeps the lowest accepting sample index.
	FirstAccepted TieBreak = iota
	// LastAccepted keeps the highest accepting sample index, which is what
	// a full sequential scan that overwrites on every acceptance produces.
	LastAccepted
)

func (t TieBreak) String() string {
	switch t {
	case FirstAccepted:
		return "first"
	case LastAccepted:
		return "last"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak parses "first" or "last".
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "":
		return FirstAccepted, nil
	case "last":
		return LastAccepted, nil
	default:
		return 0, fmt.Errorf("unknown tie-break %q (valid: first, last)", s)
	}
}

// SolverConfig holds the exact solver settings.
type SolverConfig struct {
	IntegralityTolerance float64  // max |y - round(y)| per coordinate
	NormTolerance        float64  // max |‖round(y)‖ - key norm|
	Workers              int      // parallel workers (0 = NumCPU)
	ChunkSize            int      // samples per work item
	TieBreak             TieBreak // winner among accepting samples
}

// DefaultSolverConfig returns the default solver configuration.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		IntegralityTolerance: 0.001,
		NormTolerance:        1.0,
		Workers:              0,
		ChunkSize:            256,
		TieBreak:             FirstAccepted,
	}
}

// SolveOutcome is the result of one solver pass over the samples.
type SolveOutcome struct {
	Key        []int64   // accepted key, nil when nothing was accepted
	Accepted   bool      // some sample produced an accepted key
	Sample     int       // index of the accepting sample, -1 otherwise
	Average    []float64 // mean rounded solution over non-degenerate samples
	Degenerate int       // samples skipped because their circulant is singular
}

// ExactSolver turns an approximate key into the exact one using individual
// signatures v = x ⊛ a with short x.
type ExactSolver struct {
	Config  SolverConfig
	KeyNorm float64
}

// NewExactSolver creates a solver for keys of the given norm.
func NewExactSolver(keyNorm float64, config SolverConfig) *ExactSolver {
	return &ExactSolver{Config: config, KeyNorm: keyNorm}
}

// Accept is the deployment acceptance test: y must be integral within the
// tolerance and its rounding must have the key norm.
func (s *ExactSolver) Accept(y, rounded []float64) bool {
	for i := range y {
		if math.Abs(y[i]-rounded[i]) >= s.Config.IntegralityTolerance {
			return false
		}
	}
	return math.Abs(floats.Norm(rounded, 2)-s.KeyNorm) < s.Config.NormTolerance
}

// chunkResult is the contribution of one work item.
type chunkResult struct {
	sum        []float64
	counted    int
	degenerate int
	accepted   int // sample index, -1 when none
	key        []float64
}

// Solve runs one pass of the exact solver.
//
// For every sample it rounds x' = v ⊛ candidate⁻¹ and solves round(x') ⊛ y = v.
// A sample whose rounded coefficients give a singular circulant is skipped.
// If no y passes Accept, the outcome carries the average of the rounded
// solutions to seed the next iteration. ErrDegenerate is returned when the
// candidate itself, or every sample, is singular.
func (s *ExactSolver) Solve(ctx context.Context, candidate []float64, samples *mat.Dense) (*SolveOutcome, error) {
	if samples == nil {
		return nil, errors.New("no samples")
	}
	rows, n := samples.Dims()
	if len(candidate) != n {
		return nil, fmt.Errorf("candidate has length %d, samples %d", len(candidate), n)
	}

	t := circulant.NewTransform(n)
	cs := t.Spectrum(nil, candidate)
	if circulant.Singular(cs) {
		return nil, fmt.Errorf("candidate circulant: %w", ErrDegenerate)
	}
	inv := make([]complex128, n)
	for k := range cs {
		inv[k] = 1 / cs[k]
	}

	chunkSize := s.Config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultSolverConfig().ChunkSize
	}
	numChunks := (rows + chunkSize - 1) / chunkSize
	numWorkers := s.Config.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > numChunks {
		numWorkers = numChunks
	}

	// best holds the winning sample index so far; chunks that cannot beat
	// it are skipped.
	var best int64 = math.MaxInt64
	if s.Config.TieBreak == LastAccepted {
		best = -1
	}

	results := make([]chunkResult, numChunks)
	for i := range results {
		results[i].accepted = -1
	}
	workChan := make(chan int, numWorkers*10)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newSolveWorker(s, n, inv)
			for c := range workChan {
				if ctx.Err() != nil {
					continue
				}
				lo := c * chunkSize
				hi := lo + chunkSize
				if hi > rows {
					hi = rows
				}
				if s.skip(atomic.LoadInt64(&best), lo, hi) {
					continue
				}
				results[c] = w.run(samples, lo, hi)
				if idx := results[c].accepted; idx >= 0 {
					s.offer(&best, int64(idx))
				}
			}
		}()
	}

	go func() {
		defer close(workChan)
		for c := 0; c < numChunks; c++ {
			select {
			case <-ctx.Done():
				return
			case workChan <- c:
			}
		}
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.merge(results, n, rows)
}

// skip reports whether a chunk [lo, hi) can no longer contain the winner.
func (s *ExactSolver) skip(best int64, lo, hi int) bool {
	if s.Config.TieBreak == LastAccepted {
		return best >= int64(hi)
	}
	return best < int64(lo)
}

func (s *ExactSolver) offer(best *int64, idx int64) {
	for {
		cur := atomic.LoadInt64(best)
		if s.Config.TieBreak == LastAccepted && idx <= cur {
			return
		}
		if s.Config.TieBreak != LastAccepted && idx >= cur {
			return
		}
		if atomic.CompareAndSwapInt64(best, cur, idx) {
			return
		}
	}
}

// merge combines chunk results in chunk order, so the outcome does not
// depend on scheduling.
func (s *ExactSolver) merge(results []chunkResult, n, rows int) (*SolveOutcome, error) {
	out := &SolveOutcome{Sample: -1}
	var winner []float64
	sum := make([]float64, n)
	counted := 0
	for _, r := range results {
		out.Degenerate += r.degenerate
		if r.sum != nil {
			floats.Add(sum, r.sum)
			counted += r.counted
		}
		if r.accepted < 0 {
			continue
		}
		if out.Sample < 0 ||
			(s.Config.TieBreak == LastAccepted && r.accepted > out.Sample) ||
			(s.Config.TieBreak != LastAccepted && r.accepted < out.Sample) {
			out.Sample = r.accepted
			winner = r.key
		}
	}

	if winner != nil {
		out.Accepted = true
		out.Key = toInts(winner)
		return out, nil
	}
	if counted == 0 {
		return nil, fmt.Errorf("all %d samples: %w", rows, ErrDegenerate)
	}
	floats.Scale(1/float64(counted), sum)
	out.Average = sum
	return out, nil
}

// solveWorker owns the per-goroutine DFT plan and scratch buffers.
type solveWorker struct {
	s   *ExactSolver
	t   *circulant.Transform
	inv []complex128

	vs, xs, ys []complex128
	x, y, yr   []float64
}

func newSolveWorker(s *ExactSolver, n int, inv []complex128) *solveWorker {
	return &solveWorker{
		s:   s,
		t:   circulant.NewTransform(n),
		inv: inv,
		vs:  make([]complex128, n),
		xs:  make([]complex128, n),
		ys:  make([]complex128, n),
		x:   make([]float64, n),
		y:   make([]float64, n),
		yr:  make([]float64, n),
	}
}

func (w *solveWorker) run(samples *mat.Dense, lo, hi int) chunkResult {
	_, n := samples.Dims()
	res := chunkResult{sum: make([]float64, n), accepted: -1}
	for i := lo; i < hi; i++ {
		v := samples.RawRowView(i)

		// x' = v ⊛ candidate⁻¹, rounded.
		w.t.Spectrum(w.vs, v)
		for k := range w.vs {
			w.xs[k] = w.vs[k] * w.inv[k]
		}
		w.t.Real(w.x, w.xs)
		circulant.Round(w.x, w.x)

		// round(x') ⊛ y = v in the least squares sense.
		w.t.Spectrum(w.xs, w.x)
		if _, deficient, _ := circulant.Divide(w.ys, w.vs, w.xs, true); deficient {
			res.degenerate++
			continue
		}
		w.t.Real(w.y, w.ys)
		circulant.Round(w.yr, w.y)

		floats.Add(res.sum, w.yr)
		res.counted++

		if w.s.Accept(w.y, w.yr) {
			if res.accepted < 0 || w.s.Config.TieBreak == LastAccepted {
				res.accepted = i
				res.key = append(res.key[:0], w.yr...)
			}
			if w.s.Config.TieBreak != LastAccepted {
				break
			}
		}
	}
	return res
}
