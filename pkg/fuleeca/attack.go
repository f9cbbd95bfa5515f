package fuleeca

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/crypto/sha3"
)

// AttackConfig holds the controller settings.
type AttackConfig struct {
	Candidates             int  // leading singular directions to try
	MaxAveragingIterations int  // averaging rounds per direction
	BestRounding           bool // try best-rounding reconstruction after a failed direct solve
	RequireGroundTruth     bool // when the reference key is known, accept only ±a
	Solver                 SolverConfig
}

// DefaultAttackConfig returns the default attack configuration.
func DefaultAttackConfig() AttackConfig {
	return AttackConfig{
		Candidates:             DefaultCandidates,
		MaxAveragingIterations: 20,
		BestRounding:           false,
		RequireGroundTruth:     true,
		Solver:                 DefaultSolverConfig(),
	}
}

type phase int

const (
	phaseSpectral phase = iota // SpectralAttempt(attempt)
	phaseRefine                // Refine(attempt, iteration)
	phaseVerified
	phaseExhausted
)

// state is the controller position. attempt and iteration are the only
// counters and both are bounded by the configuration.
type state struct {
	phase     phase
	attempt   int
	iteration int
	average   []float64
	key       []int64
}

// Attack recovers the secret vector a from a sample set.
type Attack struct {
	params  Parameters
	bias    BiasTable
	profile Profile
	config  AttackConfig
	logger  *log.Logger
}

// NewAttack creates an attack. A nil profile is derived from the reference
// key of the sample set at run time.
func NewAttack(params Parameters, bias BiasTable, profile Profile) *Attack {
	return &Attack{
		params:  params,
		bias:    bias,
		profile: profile,
		config:  DefaultAttackConfig(),
		logger:  log.New(io.Discard, "", 0),
	}
}

// WithConfig sets the attack configuration.
func (a *Attack) WithConfig(config AttackConfig) *Attack {
	a.config = config
	return a
}

// WithLogger sets the progress logger.
func (a *Attack) WithLogger(logger *log.Logger) *Attack {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	a.logger = logger
	return a
}

// Run executes the attack. Exhaustion is reported in the result, not as an
// error; errors are limited to invalid inputs and cancellation.
func (a *Attack) Run(ctx context.Context, set *SampleSet) (*RecoveryResult, error) {
	return a.run(ctx, set, nil)
}

// RunFromSpectrum executes the attack with directions estimated elsewhere,
// for example on a larger sample set or by an earlier run. The samples are
// only used by the exact solver, so fewer than n/2 rows are allowed.
func (a *Attack) RunFromSpectrum(ctx context.Context, set *SampleSet, spec *Spectrum) (*RecoveryResult, error) {
	if spec == nil {
		return nil, errors.New("no spectrum")
	}
	for i, d := range spec.Directions {
		if len(d) != a.params.NHalf() {
			return nil, fmt.Errorf("direction %d has length %d, parameters expect %d", i, len(d), a.params.NHalf())
		}
	}
	return a.run(ctx, set, spec)
}

func (a *Attack) run(ctx context.Context, set *SampleSet, spec *Spectrum) (*RecoveryResult, error) {
	nHalf := a.params.NHalf()
	if set.Len() > 0 && set.Dim() != nHalf {
		return nil, &ParameterError{Category: a.params.Category, Reason: fmt.Sprintf("samples have length %d, parameters expect %d", set.Dim(), nHalf)}
	}
	if spec == nil && len(a.bias) != nHalf {
		return nil, fmt.Errorf("bias table has %d entries, want %d", len(a.bias), nHalf)
	}
	profile := a.profile
	if profile == nil {
		if !set.Key.Known() {
			return nil, ErrNoProfile
		}
		profile = ProfileFromKey(set.Key.A)
	}
	refiner := NewRefiner(profile, a.params.KeyNorm())
	truth := set.Key.A

	result := &RecoveryResult{
		Statistics: Statistics{
			Samples:     set.Len(),
			GroundTruth: set.Key.Known(),
			Attempt:     -1,
			RecoveredAt: PathNone,
			State:       StateExhausted,
		},
	}
	if spec == nil {
		if set.Len() < nHalf {
			a.logger.Printf("%d samples cannot give a full-rank system of size %d", set.Len(), nHalf)
			return result, nil
		}
		a.logger.Printf("estimating %d singular directions from %d samples", a.config.Candidates, set.Len())
		var err error
		spec, err = EstimateDirections(set.Samples, a.bias, a.config.Candidates)
		if err != nil {
			return nil, fmt.Errorf("spectral estimate: %w", err)
		}
	} else if set.Len() == 0 {
		a.logger.Printf("no samples for the exact solver")
		return result, nil
	}
	result.SingularValues = spec.Values

	solver := NewExactSolver(a.params.KeyNorm(), a.config.Solver)
	dist := func(c []float64) float64 {
		if !set.Key.Known() {
			return 0
		}
		return Distance(c, truth)
	}

	st := state{phase: phaseSpectral}
	var cur AttemptStatistics
	next := func() {
		result.Statistics.merge(cur)
		st = state{phase: phaseSpectral, attempt: st.attempt + 1}
	}
	conclude := func(key []int64, path RecoveryPath) {
		cur.Accepted = true
		cur.RecoveredAt = path
		if set.Key.Known() && a.config.RequireGroundTruth && !MatchesGroundTruth(key, truth) {
			a.logger.Printf("attempt %d: accepted key via %s differs from the reference key", st.attempt, path)
			next()
			return
		}
		a.logger.Printf("attempt %d: key recovered via %s", st.attempt, path)
		result.Statistics.merge(cur)
		st.phase = phaseVerified
		st.key = key
	}
	abandon := func(err error) {
		a.logger.Printf("attempt %d abandoned: %v", st.attempt, err)
		cur.Abandoned = true
		next()
	}

	for st.phase != phaseVerified && st.phase != phaseExhausted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch st.phase {
		case phaseSpectral:
			if st.attempt >= a.config.Candidates || st.attempt >= len(spec.Directions) {
				st.phase = phaseExhausted
				continue
			}
			cur = AttemptStatistics{
				Index:                   st.attempt,
				RecoveredAt:             PathNone,
				AverageDistances:        []float64{},
				AverageTypicalDistances: []float64{},
			}

			scaled, typical, err := refiner.Refine(spec.Directions[st.attempt])
			if err != nil {
				return nil, err
			}
			candidate := toFloats(typical)
			cur.SingularValueDistance = dist(scaled)
			cur.TypicalDistance = dist(candidate)
			a.logger.Printf("attempt %d: ‖a - guess‖ = %.2f, typical %.2f", st.attempt, cur.SingularValueDistance, cur.TypicalDistance)

			out, err := solver.Solve(ctx, candidate, set.Samples)
			if errors.Is(err, ErrDegenerate) {
				abandon(err)
				continue
			}
			if err != nil {
				return nil, err
			}
			cur.DegenerateSamples += out.Degenerate
			if out.Accepted {
				conclude(out.Key, PathSpectralDirect)
				continue
			}

			if a.config.BestRounding {
				br, err := solver.SolveBestRounding(candidate, set.Samples)
				switch {
				case errors.Is(err, ErrDegenerate):
					a.logger.Printf("attempt %d: best rounding degenerate", st.attempt)
				case err != nil:
					return nil, err
				default:
					cur.BestRoundingDistance = dist(br.Estimate)
					if br.Accepted {
						conclude(br.Key, PathBestRounding)
						continue
					}
				}
			}

			st.phase = phaseRefine
			st.iteration = 0
			st.average = out.Average

		case phaseRefine:
			if st.iteration >= a.config.MaxAveragingIterations {
				a.logger.Printf("attempt %d: averaging budget spent", st.attempt)
				next()
				continue
			}
			st.iteration++
			cur.AveragingIterations = st.iteration
			cur.AverageDistances = append(cur.AverageDistances, dist(st.average))

			typical, err := refiner.Project(st.average)
			if err != nil {
				return nil, err
			}
			candidate := toFloats(typical)
			cur.AverageTypicalDistances = append(cur.AverageTypicalDistances, dist(candidate))
			a.logger.Printf("attempt %d.%d: ‖a - average‖ = %.2f, typical %.2f", st.attempt, st.iteration,
				cur.AverageDistances[len(cur.AverageDistances)-1], cur.AverageTypicalDistances[len(cur.AverageTypicalDistances)-1])

			out, err := solver.Solve(ctx, candidate, set.Samples)
			if errors.Is(err, ErrDegenerate) {
				abandon(err)
				continue
			}
			if err != nil {
				return nil, err
			}
			cur.DegenerateSamples += out.Degenerate
			if out.Accepted {
				conclude(out.Key, PathAveraging)
				continue
			}
			st.average = out.Average
		}
	}

	if st.phase == phaseVerified {
		result.Key = st.key
		result.Accepted = true
		result.Fingerprint = KeyFingerprint(st.key)
		result.Statistics.Recovered = true
		result.Statistics.State = StateVerified
	} else {
		// Attempts rejected by the reference key keep their path, the run does not.
		result.Statistics.RecoveredAt = PathNone
	}
	return result, nil
}

// KeyFingerprint returns a short SHAKE256 digest of a key for logs and
// reports.
func KeyFingerprint(key []int64) string {
	h := sha3.NewShake256()
	buf := make([]byte, 8)
	for _, v := range key {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		h.Write(buf)
	}
	sum := make([]byte, 16)
	h.Read(sum)
	return hex.EncodeToString(sum)
}
