package fuleeca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// scenarioSamples is comfortably above what n = 31 needs for the leading
// singular vector to land within rounding distance of a.
const scenarioSamples = 6000

func TestAttack_Run_Synthetic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end attack in short mode")
	}
	g, set := testSamples(t, 31, "scenario", scenarioSamples)

	var logs bytes.Buffer
	attack := NewAttack(g.Params(), g.Bias(), nil).WithLogger(log.New(&logs, "", 0))
	result, err := attack.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	stats := result.Statistics
	t.Logf("state=%s path=%s attempt=%d iterations=%d", stats.State, stats.RecoveredAt, stats.Attempt, stats.AveragingIterations)

	if stats.State != StateVerified || !stats.Recovered || !result.Accepted {
		t.Fatalf("attack did not verify:\n%s", logs.String())
	}
	if !MatchesGroundTruth(result.Key, g.Key().A) {
		t.Errorf("recovered key differs from a")
	}
	if stats.RecoveredAt != PathSpectralDirect && stats.RecoveredAt != PathAveraging {
		t.Errorf("unexpected recovery path %q", stats.RecoveredAt)
	}
	if len(stats.Attempts) == 0 || len(stats.Attempts) > DefaultCandidates {
		t.Errorf("recorded %d attempts", len(stats.Attempts))
	}
	if stats.AveragingIterations > DefaultAttackConfig().MaxAveragingIterations {
		t.Errorf("averaging iterations %d exceed the budget", stats.AveragingIterations)
	}
	if stats.Samples != scenarioSamples || !stats.GroundTruth {
		t.Errorf("statistics header = %d samples, ground truth %v", stats.Samples, stats.GroundTruth)
	}
	if len(result.SingularValues) != 31 || result.SingularValues[0] < result.SingularValues[1] {
		t.Errorf("singular values not in descending order")
	}
	if result.Fingerprint != KeyFingerprint(result.Key) || len(result.Fingerprint) != 32 {
		t.Errorf("fingerprint = %q", result.Fingerprint)
	}
	if logs.Len() == 0 {
		t.Error("expected progress logs")
	}
}

func TestAttack_Run_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end attack in short mode")
	}
	g, set := testSamples(t, 31, "idempotent", 3000)
	attack := NewAttack(g.Params(), g.Bias(), nil)

	first, err := attack.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := attack.Run(context.Background(), set)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ: %+v vs %+v", first.Statistics, second.Statistics)
	}

	// A fresh generator with the same seed gives the same run.
	_, again := testSamples(t, 31, "idempotent", 3000)
	third, err := NewAttack(g.Params(), g.Bias(), nil).Run(context.Background(), again)
	if err != nil {
		t.Fatalf("third Run failed: %v", err)
	}
	if !reflect.DeepEqual(first, third) {
		t.Errorf("regenerated run differs")
	}
}

func TestAttack_Run_TooFewSamples(t *testing.T) {
	g, set := testSamples(t, 31, "boundary", 30)
	result, err := NewAttack(g.Params(), g.Bias(), nil).Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Statistics.State != StateExhausted || result.Statistics.Recovered {
		t.Errorf("state = %s, recovered = %v; want exhausted", result.Statistics.State, result.Statistics.Recovered)
	}
	if result.Key != nil || len(result.Statistics.Attempts) != 0 || result.SingularValues != nil {
		t.Error("no numeric work expected below the full-rank boundary")
	}

	record, err := json.Marshal(result.Statistics)
	if err != nil {
		t.Fatalf("Failed to encode statistics: %v", err)
	}
	if !bytes.Contains(record, []byte(`"recovered_at":"none"`)) {
		t.Errorf("exhausted record = %s, want recovered_at none", record)
	}
}

func TestAttack_Run_WithoutGroundTruth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end attack in short mode")
	}
	g, set := testSamples(t, 31, "scenario", scenarioSamples)
	set.Key = SecretKey{}

	result, err := NewAttack(g.Params(), g.Bias(), g.Profile()).Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Statistics.GroundTruth {
		t.Error("ground truth reported without a reference key")
	}
	if !result.Statistics.Recovered {
		t.Fatal("acceptance test alone should recover the key")
	}
	if !MatchesGroundTruth(result.Key, g.Key().A) {
		t.Errorf("accepted key differs from a")
	}
	if result.Statistics.TypicalDistance != 0 {
		t.Errorf("distances must stay zero without a reference key")
	}
}

func TestAttack_Run_Errors(t *testing.T) {
	g, set := testSamples(t, 31, "errors", 40)

	_, err := NewAttack(CustomParameters(29, 65521, 100), g.Bias(), nil).Run(context.Background(), set)
	var perr *ParameterError
	if !errors.As(err, &perr) {
		t.Errorf("length mismatch: expected ParameterError, got %v", err)
	}

	if _, err := NewAttack(g.Params(), g.Bias()[:30], nil).Run(context.Background(), set); err == nil {
		t.Error("expected error for a short bias table")
	}

	anonymous := *set
	anonymous.Key = SecretKey{}
	if _, err := NewAttack(g.Params(), g.Bias(), nil).Run(context.Background(), &anonymous); !errors.Is(err, ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAttack(g.Params(), g.Bias(), nil).Run(ctx, set); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAttack_Run_AttemptBudget(t *testing.T) {
	// With too few samples for a useful estimate every attempt runs out.
	g, set := testSamples(t, 31, "budget", 40)
	config := DefaultAttackConfig()
	config.Candidates = 2
	config.MaxAveragingIterations = 3
	config.BestRounding = true

	result, err := NewAttack(g.Params(), g.Bias(), nil).WithConfig(config).Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	stats := result.Statistics
	if stats.Recovered {
		t.Skip("recovered from 40 samples; budget path not exercised")
	}
	if stats.State != StateExhausted || len(stats.Attempts) != 2 {
		t.Fatalf("state %s after %d attempts, want exhausted after 2", stats.State, len(stats.Attempts))
	}
	if stats.RecoveredAt != PathNone {
		t.Errorf("exhausted run reports path %q", stats.RecoveredAt)
	}
	for _, a := range stats.Attempts {
		if a.Abandoned || a.Accepted {
			continue
		}
		if a.AveragingIterations != 3 || len(a.AverageDistances) != 3 || len(a.AverageTypicalDistances) != 3 {
			t.Errorf("attempt %d: %d iterations, %d distances", a.Index, a.AveragingIterations, len(a.AverageDistances))
		}
	}
}

func TestAttack_RunFromSpectrum_Averaging(t *testing.T) {
	key, candidate, set := swappedKeyFixture(t)
	params := CustomParameters(len(key), 65521, ProfileFromKey(key).SquaredNorm())
	direction := toFloats(candidate)
	floats.Scale(1/floats.Norm(direction, 2), direction)
	spec := &Spectrum{Directions: [][]float64{direction}, Values: []float64{1}}

	config := DefaultAttackConfig()
	config.Candidates = 1
	result, err := NewAttack(params, nil, nil).WithConfig(config).RunFromSpectrum(context.Background(), set, spec)
	if err != nil {
		t.Fatalf("RunFromSpectrum failed: %v", err)
	}
	stats := result.Statistics
	if stats.State != StateVerified || stats.RecoveredAt != PathAveraging {
		t.Fatalf("state %s via %q, want verified via averaging", stats.State, stats.RecoveredAt)
	}
	if !MatchesGroundTruth(result.Key, key) {
		t.Error("recovered key does not match ±a")
	}
	if stats.AveragingIterations != 1 || len(stats.AverageTypicalDistances) != 1 {
		t.Fatalf("%d averaging iterations, want 1", stats.AveragingIterations)
	}
	if stats.TypicalDistance != Distance(toFloats(candidate), key) {
		t.Errorf("typical distance %.3f, want the candidate's", stats.TypicalDistance)
	}
	if stats.AverageTypicalDistances[0] >= stats.TypicalDistance {
		t.Errorf("projected average at %.3f, no closer than the candidate at %.3f",
			stats.AverageTypicalDistances[0], stats.TypicalDistance)
	}
	if a := stats.Attempts[0]; !a.Accepted || a.RecoveredAt != PathAveraging || a.DegenerateSamples < 2 {
		t.Errorf("attempt record %+v", a)
	}
}

func TestAttack_RunFromSpectrum_GroundTruthNotRequired(t *testing.T) {
	// The reference key still supplies the profile and the distances when
	// only the acceptance test decides.
	key, candidate, set := swappedKeyFixture(t)
	params := CustomParameters(len(key), 65521, ProfileFromKey(key).SquaredNorm())
	spec := &Spectrum{Directions: [][]float64{toFloats(candidate)}}

	config := DefaultAttackConfig()
	config.RequireGroundTruth = false
	result, err := NewAttack(params, nil, nil).WithConfig(config).RunFromSpectrum(context.Background(), set, spec)
	if err != nil {
		t.Fatalf("RunFromSpectrum failed: %v", err)
	}
	stats := result.Statistics
	if !stats.GroundTruth || !stats.Recovered {
		t.Fatalf("ground truth %v, recovered %v", stats.GroundTruth, stats.Recovered)
	}
	if stats.TypicalDistance == 0 || len(stats.AverageDistances) == 0 || stats.AverageDistances[0] == 0 {
		t.Errorf("distances not reported: typical %.3f, averages %v", stats.TypicalDistance, stats.AverageDistances)
	}
	if !MatchesGroundTruth(result.Key, key) {
		t.Error("recovered key does not match ±a")
	}
}

func TestAttack_RunFromSpectrum_Errors(t *testing.T) {
	key, _, set := swappedKeyFixture(t)
	params := CustomParameters(len(key), 65521, ProfileFromKey(key).SquaredNorm())
	attack := NewAttack(params, nil, nil)

	if _, err := attack.RunFromSpectrum(context.Background(), set, nil); err == nil {
		t.Error("expected an error without a spectrum")
	}
	short := &Spectrum{Directions: [][]float64{make([]float64, 31)}}
	if _, err := attack.RunFromSpectrum(context.Background(), set, short); err == nil {
		t.Error("expected an error for a direction of the wrong length")
	}

	result, err := attack.RunFromSpectrum(context.Background(), &SampleSet{Key: set.Key}, &Spectrum{Directions: [][]float64{toFloats(key)}})
	if err != nil {
		t.Fatalf("RunFromSpectrum failed: %v", err)
	}
	if result.Statistics.State != StateExhausted || len(result.Statistics.Attempts) != 0 {
		t.Errorf("empty sample set: state %s after %d attempts", result.Statistics.State, len(result.Statistics.Attempts))
	}
}

func TestAttack_Run_FullScenario(t *testing.T) {
	if testing.Short() || os.Getenv("FULEECA_FULL_SCENARIO") != "1" {
		t.Skip("set FULEECA_FULL_SCENARIO=1 to run the category 1 scenario")
	}
	cfg, err := SyntheticConfigForCategory(1, []byte("category-1"))
	if err != nil {
		t.Fatalf("Failed to configure workload: %v", err)
	}
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	params, err := ParametersForCategory(1)
	if err != nil {
		t.Fatalf("Failed to load parameters: %v", err)
	}
	if got := ProfileFromKey(g.Key().A).SquaredNorm(); got != params.KeySquaredNorm {
		t.Fatalf("‖a‖² = %d, want %d", got, params.KeySquaredNorm)
	}
	set, err := g.SampleSet(100000)
	if err != nil {
		t.Fatalf("Failed to draw samples: %v", err)
	}

	result, err := NewAttack(params, g.Bias(), nil).
		WithLogger(log.New(os.Stderr, "fuleeca: ", log.LstdFlags)).
		Run(context.Background(), set)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Statistics.State != StateVerified {
		t.Fatalf("category 1 scenario ended %s", result.Statistics.State)
	}
}
