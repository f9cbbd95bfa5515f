// Package fuleeca provides a statistical key-recovery attack against the
// FuLeeca signature scheme.
//
// A FuLeeca signature half is v = x ⊛ a for the secret circulant vector a and
// a short signing vector x whose coefficients have a position-dependent
// variance. Averaging vᵀv over many signatures and removing that known bias
// leaves an approximation of the rank-1 matrix aᵀa. Its leading singular
// vector, scaled and projected onto the key's magnitude profile, is close
// enough to a that individual signatures can be solved for a exactly.
//
// # Quick Start
//
//	import "github.com/mahdiidarabi/fuleeca-recovery/pkg/fuleeca"
//
//	// Create a client with default settings (CSV samples, bias tables in ./data)
//	client := fuleeca.NewClient()
//
//	// Run the attack on category 1 signatures
//	result, err := client.RecoverKey(ctx, "cat1_sigs.txt", 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("recovered=%v via %s\n", result.Statistics.Recovered, result.Statistics.RecoveredAt)
//
// # Customization
//
//	config := fuleeca.DefaultAttackConfig()
//	config.BestRounding = true
//	config.Solver.Workers = 8
//	config.Solver.TieBreak = fuleeca.LastAccepted
//
//	client := fuleeca.NewClient().
//	    WithParser(&fuleeca.JSONParser{Limit: 50000}).
//	    WithBiasSource(fuleeca.BiasDir{Dir: "/srv/fuleeca/data"}).
//	    WithConfig(config)
//
// Without ground truth in the sample source (or with RequireGroundTruth
// disabled) the integrality and norm test of ExactSolver.Accept alone decides
// success.
package fuleeca
