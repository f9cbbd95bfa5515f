package fuleeca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SecretKey is the reference secret key (a, b) stored at the head of a sample
// source. It is only used to score and confirm a recovery.
type SecretKey struct {
	A []int64 // targeted by the attack
	B []int64
}

// Known reports whether the key carries a reference value for a.
func (k SecretKey) Known() bool {
	return len(k.A) > 0
}

// SampleSet is the evidence set: one row per signature, holding the first
// half v1 of the signature centered into (-q/2, q/2].
type SampleSet struct {
	Key     SecretKey
	Samples *mat.Dense
}

// NewSampleSet builds a sample set from centered rows of equal length.
func NewSampleSet(key SecretKey, rows [][]int64) (*SampleSet, error) {
	if len(rows) == 0 {
		return &SampleSet{Key: key}, nil
	}
	n := len(rows[0])
	data := make([]float64, 0, len(rows)*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("sample %d has length %d, want %d", i, len(row), n)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return &SampleSet{Key: key, Samples: mat.NewDense(len(rows), n, data)}, nil
}

// Len returns the number of samples.
func (s *SampleSet) Len() int {
	if s.Samples == nil {
		return 0
	}
	r, _ := s.Samples.Dims()
	return r
}

// Dim returns the sample length, or 0 for an empty set.
func (s *SampleSet) Dim() int {
	if s.Samples == nil {
		return 0
	}
	_, c := s.Samples.Dims()
	return c
}

// RecoveryPath names the step of the attack that produced the accepted key.
type RecoveryPath string

const (
	PathNone           RecoveryPath = "none"
	PathSpectralDirect RecoveryPath = "spectral-direct"
	PathAveraging      RecoveryPath = "averaging"
	PathBestRounding   RecoveryPath = "best-rounding"
)

// Terminal states of the attack.
const (
	StateVerified  = "verified"
	StateExhausted = "exhausted"
)

// AttemptStatistics records one spectral attempt. Distances are Euclidean
// distances to ±a and are only filled when the reference key is known.
type AttemptStatistics struct {
	Index                   int          `json:"index"`
	SingularValueDistance   float64      `json:"a_dist_singular_value"`
	TypicalDistance         float64      `json:"a_dist_typical"`
	BestRoundingDistance    float64      `json:"a_dist_best_rounding,omitempty"`
	AverageDistances        []float64    `json:"a_dist_average"`
	AverageTypicalDistances []float64    `json:"a_dist_average_typical"`
	AveragingIterations     int          `json:"averaging_iterations"`
	DegenerateSamples       int          `json:"degenerate_samples"`
	Abandoned               bool         `json:"abandoned"`
	Accepted                bool         `json:"accepted"`
	RecoveredAt             RecoveryPath `json:"recovered_at"`
}

// Statistics is the diagnostic record of a run. The top-level distance and
// iteration fields mirror the last attempt that ran.
type Statistics struct {
	Samples                 int                 `json:"samples"`
	GroundTruth             bool                `json:"ground_truth"`
	SingularValueDistance   float64             `json:"a_dist_singular_value"`
	TypicalDistance         float64             `json:"a_dist_typical"`
	AverageDistances        []float64           `json:"a_dist_average"`
	AverageTypicalDistances []float64           `json:"a_dist_average_typical"`
	RecoveredAt             RecoveryPath        `json:"recovered_at"`
	AveragingIterations     int                 `json:"averaging_iterations"`
	Attempt                 int                 `json:"attempt"`
	Recovered               bool                `json:"recovered"`
	State                   string              `json:"state"`
	Attempts                []AttemptStatistics `json:"attempts"`
}

// merge folds a finished attempt into the run record.
func (s *Statistics) merge(a AttemptStatistics) {
	s.Attempts = append(s.Attempts, a)
	s.Attempt = a.Index
	s.SingularValueDistance = a.SingularValueDistance
	s.TypicalDistance = a.TypicalDistance
	s.AverageDistances = a.AverageDistances
	s.AverageTypicalDistances = a.AverageTypicalDistances
	s.AveragingIterations = a.AveragingIterations
	if a.Accepted {
		s.RecoveredAt = a.RecoveredAt
	}
}

// RecoveryResult contains the outcome of an attack run.
type RecoveryResult struct {
	Key            []int64    // accepted key, nil when exhausted
	Accepted       bool       // the key passed the integrality and norm test
	Statistics     Statistics // diagnostic record
	SingularValues []float64  // spectrum of the bias-corrected matrix
	Fingerprint    string     // SHAKE256 fingerprint of Key
}
