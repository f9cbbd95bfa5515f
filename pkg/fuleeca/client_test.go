package fuleeca

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeWorkload writes a synthetic sample file and its bias table into a
// temporary directory and returns the directory.
func writeWorkload(t *testing.T, seed string, count int, json bool) (dir string, g *Generator) {
	t.Helper()
	dir = t.TempDir()
	g = testGenerator(t, 31, seed)

	name := "sigs.txt"
	if json {
		name = "sigs.json"
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to create sample file: %v", err)
	}
	if json {
		err = g.WriteJSON(f, count)
	} else {
		err = g.WriteCSV(f, count)
	}
	if err != nil {
		t.Fatalf("Failed to write samples: %v", err)
	}
	f.Close()

	bf, err := os.Create(BiasDir{Dir: dir}.Path(31))
	if err != nil {
		t.Fatalf("Failed to create bias file: %v", err)
	}
	if err := WriteBiasTable(bf, g.Bias()); err != nil {
		t.Fatalf("Failed to write bias table: %v", err)
	}
	bf.Close()
	return dir, g
}

func TestClient_RecoverKeyWithParameters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end attack in short mode")
	}
	dir, g := writeWorkload(t, "scenario", scenarioSamples, false)

	client := NewClient().WithBiasSource(BiasDir{Dir: dir})
	result, err := client.RecoverKeyWithParameters(context.Background(), filepath.Join(dir, "sigs.txt"), g.Params())
	if err != nil {
		t.Fatalf("Failed to recover key: %v", err)
	}
	if !result.Statistics.Recovered {
		t.Fatalf("attack ended %s", result.Statistics.State)
	}
	if !MatchesGroundTruth(result.Key, g.Key().A) {
		t.Errorf("recovered key differs from a")
	}
}

func TestClient_RecoverKey_JSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end attack in short mode")
	}
	dir, g := writeWorkload(t, "scenario", scenarioSamples, true)

	config := DefaultAttackConfig()
	config.Solver.Workers = 2
	client := NewClient().
		WithParser(&JSONParser{}).
		WithBiasSource(BiasDir{Dir: dir}).
		WithProfile(g.Profile()).
		WithConfig(config)
	result, err := client.RecoverKeyWithParameters(context.Background(), filepath.Join(dir, "sigs.json"), g.Params())
	if err != nil {
		t.Fatalf("Failed to recover key: %v", err)
	}
	if !result.Statistics.Recovered {
		t.Fatalf("attack ended %s", result.Statistics.State)
	}
}

func TestClient_RecoverKey_Errors(t *testing.T) {
	dir, g := writeWorkload(t, "client", 5, false)
	client := NewClient().WithBiasSource(BiasDir{Dir: dir})
	ctx := context.Background()

	_, err := client.RecoverKey(ctx, filepath.Join(dir, "sigs.txt"), 2)
	var perr *ParameterError
	if !errors.As(err, &perr) {
		t.Errorf("category 2: expected ParameterError, got %v", err)
	}

	// Category 1 expects rows of 659 values.
	_, err = client.RecoverKey(ctx, filepath.Join(dir, "sigs.txt"), 1)
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("category 1 on short rows: expected FormatError, got %v", err)
	}

	if err := os.Remove(BiasDir{Dir: dir}.Path(31)); err != nil {
		t.Fatalf("Failed to remove bias table: %v", err)
	}
	if _, err := client.RecoverKeyWithParameters(ctx, filepath.Join(dir, "sigs.txt"), g.Params()); err == nil {
		t.Error("expected error for a missing bias table")
	}

	// Five signatures are below the full-rank boundary: exhausted, not an error.
	result, err := client.WithBiasSource(StaticBias(g.Bias())).
		RecoverKeyWithParameters(ctx, filepath.Join(dir, "sigs.txt"), g.Params())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Statistics.State != StateExhausted {
		t.Errorf("state = %s, want exhausted", result.Statistics.State)
	}
}
