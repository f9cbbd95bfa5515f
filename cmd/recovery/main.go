package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"unicode/utf8"

	"github.com/mahdiidarabi/fuleeca-recovery/internal/report"
	"github.com/mahdiidarabi/fuleeca-recovery/pkg/fuleeca"
)

func main() {
	var (
		samplesFile  = flag.String("samples", "", "Path to the sample file (key rows followed by v1/v2 signature rows)")
		category     = flag.Int("category", 1, "FuLeeca security category (1, 3 or 5)")
		nHalf        = flag.Int("n-half", 0, "Custom vector length; overrides -category")
		modulus      = flag.Int64("q", 65521, "Modulus for -n-half")
		keyNorm2     = flag.Int64("key-norm2", 0, "Squared key norm for -n-half (default: from -profile or the reference key)")
		sigs         = flag.Int("sigs", 0, "Number of signatures to use (0 = all)")
		format       = flag.String("format", "csv", "Sample file format (csv or json)")
		delimiter    = flag.String("delimiter", ",", "Field delimiter for csv samples")
		biasDir      = flag.String("bias-dir", "data", "Directory holding D<n>.txt bias tables")
		profileFile  = flag.String("profile", "", "Typical key magnitude profile (default: from the reference key)")
		numWorkers   = flag.Int("workers", 0, "Number of parallel solver workers (0 = auto-detect based on CPU cores)")
		tieBreak     = flag.String("tie-break", "first", "Winner among accepting samples (first or last)")
		bestRounding = flag.Bool("best-rounding", false, "Also try best-rounding reconstruction")
		noTruth      = flag.Bool("no-ground-truth", false, "Trust the acceptance test instead of comparing with the reference key")
		jsonOut      = flag.Bool("json", false, "Print the statistics record as JSON")
		htmlReport   = flag.String("report", "", "Write an HTML report to this path")
		spectrumPlot = flag.String("spectrum", "", "Write a PNG plot of the singular values to this path")
		verbose      = flag.Bool("v", false, "Log progress to stderr")
	)
	flag.Parse()

	if *samplesFile == "" {
		fmt.Fprintf(os.Stderr, "Error: --samples is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Parameters: a table category, or a custom length whose norm may only be
	// known after parsing.
	var params fuleeca.Parameters
	if *nHalf > 0 {
		params = fuleeca.CustomParameters(*nHalf, *modulus, *keyNorm2)
	} else {
		p, err := fuleeca.ParametersForCategory(*category)
		if err != nil {
			fatal(err)
		}
		params = p
	}

	var parser fuleeca.SampleParser
	switch *format {
	case "csv":
		comma, err := parseDelimiter(*delimiter)
		if err != nil {
			fatal(err)
		}
		parser = &fuleeca.CSVParser{Comma: comma, Limit: *sigs}
	case "json":
		parser = &fuleeca.JSONParser{Limit: *sigs}
	default:
		fatal(fmt.Errorf("unknown format %q (valid: csv, json)", *format))
	}

	var profile fuleeca.Profile
	if *profileFile != "" {
		p, err := fuleeca.LoadProfile(*profileFile)
		if err != nil {
			fatal(err)
		}
		profile = p
	}

	tb, err := fuleeca.ParseTieBreak(*tieBreak)
	if err != nil {
		fatal(err)
	}
	config := fuleeca.DefaultAttackConfig()
	config.BestRounding = *bestRounding
	config.RequireGroundTruth = !*noTruth
	config.Solver.Workers = *numWorkers
	config.Solver.TieBreak = tb

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "fuleeca: ", log.LstdFlags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Printf("loading samples from %s", *samplesFile)
	set, err := parser.ParseSamples(*samplesFile, params)
	if err != nil {
		fatal(err)
	}
	if params.KeySquaredNorm == 0 {
		switch {
		case profile != nil:
			params.KeySquaredNorm = profile.SquaredNorm()
		case set.Key.Known():
			params.KeySquaredNorm = fuleeca.ProfileFromKey(set.Key.A).SquaredNorm()
		}
	}
	logger.Printf("loaded %d signatures of length %d", set.Len(), params.NHalf())

	client := fuleeca.NewClient().
		WithBiasSource(fuleeca.BiasDir{Dir: *biasDir}).
		WithProfile(profile).
		WithConfig(config).
		WithLogger(logger)

	result, err := client.RecoverKeyFromSamples(ctx, set, params)
	if err != nil {
		fatal(err)
	}

	if *jsonOut {
		if err := report.WriteJSON(os.Stdout, result); err != nil {
			fatal(err)
		}
	} else {
		printResult(result)
	}

	if *htmlReport != "" {
		if err := writeFile(*htmlReport, func(w io.Writer) error { return report.WriteHTML(w, result) }); err != nil {
			fatal(err)
		}
	}
	if *spectrumPlot != "" {
		if err := report.WriteSpectrumPNG(*spectrumPlot, result.SingularValues); err != nil {
			fatal(err)
		}
	}
}

func printResult(result *fuleeca.RecoveryResult) {
	stats := result.Statistics
	fmt.Printf("Samples:              %d\n", stats.Samples)
	for _, a := range stats.Attempts {
		fmt.Printf("Direction %d:          ‖a-guess‖ = %.2f, typical %.2f, %d averaging iterations",
			a.Index+1, a.SingularValueDistance, a.TypicalDistance, a.AveragingIterations)
		if a.Abandoned {
			fmt.Print(" (abandoned)")
		}
		fmt.Println()
	}
	if !stats.Recovered {
		fmt.Printf("\n[-] Attack %s: retry with more signatures\n", stats.State)
		return
	}
	fmt.Printf("\n[+] Successfully recovered secret key!\n")
	fmt.Printf("    Path:        %s\n", stats.RecoveredAt)
	fmt.Printf("    Direction:   %d\n", stats.Attempt+1)
	fmt.Printf("    Fingerprint: %s\n", result.Fingerprint)
	if stats.GroundTruth {
		fmt.Println("    ✓ Verified against the reference key!")
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return 0, fmt.Errorf("invalid delimiter %q: want a single character", s)
	}
	return r, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
