// Command synth writes a reproducible synthetic FuLeeca sample file together
// with the matching bias table and key profile, for exercising the attack
// without access to a reference signer.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mahdiidarabi/fuleeca-recovery/pkg/fuleeca"
)

func main() {
	var (
		category   = flag.Int("category", 1, "Size the workload like a security category (1, 3 or 5)")
		nHalf      = flag.Int("n-half", 0, "Custom vector length; overrides -category")
		modulus    = flag.Int64("q", 65521, "Modulus for -n-half")
		count      = flag.Int("sigs", 100000, "Number of signatures to write")
		seed       = flag.String("seed", "fuleeca", "Seed for key, radii and signing vectors")
		keyBound   = flag.Int64("key-bound", 3, "Key coefficients are drawn from [-key-bound, key-bound] (with -n-half)")
		keyNorm2   = flag.Int64("key-norm2", 0, "Draw keys with this exact squared norm (default: the category's)")
		coeffBound = flag.Int64("coeff-bound", 4, "Largest per-coordinate radius of the signing vector")
		out        = flag.String("out", "", "Output sample file (default: stdout)")
		format     = flag.String("format", "csv", "Sample file format (csv or json)")
		dataDir    = flag.String("data", "data", "Directory for D<n>.txt and P<n>.txt")
	)
	flag.Parse()

	var cfg fuleeca.SyntheticConfig
	if *nHalf > 0 {
		cfg = fuleeca.DefaultSyntheticConfig(*nHalf, []byte(*seed))
		cfg.Q = *modulus
		cfg.KeyBound = *keyBound
	} else {
		c, err := fuleeca.SyntheticConfigForCategory(*category, []byte(*seed))
		if err != nil {
			fatal(err)
		}
		cfg = c
	}
	if *keyNorm2 > 0 {
		cfg.KeySquaredNorm = *keyNorm2
	}
	cfg.CoefficientBound = *coeffBound

	g, err := fuleeca.NewGenerator(cfg)
	if err != nil {
		fatal(err)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fatal(err)
	}
	bias := fuleeca.BiasDir{Dir: *dataDir}
	if err := writeFile(bias.Path(cfg.NHalf), func(f *os.File) error { return fuleeca.WriteBiasTable(f, g.Bias()) }); err != nil {
		fatal(err)
	}
	profilePath := filepath.Join(*dataDir, fmt.Sprintf("P%d.txt", cfg.NHalf))
	if err := writeFile(profilePath, func(f *os.File) error { return fuleeca.WriteProfile(f, g.Profile()) }); err != nil {
		fatal(err)
	}

	write := func(f *os.File) error {
		if *format == "json" {
			return g.WriteJSON(f, *count)
		}
		return g.WriteCSV(f, *count)
	}
	if *out == "" {
		err = write(os.Stdout)
	} else {
		err = writeFile(*out, write)
	}
	if err != nil {
		fatal(err)
	}

	p := g.Params()
	fmt.Fprintf(os.Stderr, "Wrote %d signatures (n/2 = %d, q = %d, ‖a‖² = %d, %d redrawn)\n", *count, cfg.NHalf, p.Q, p.KeySquaredNorm, g.Wrapped())
	fmt.Fprintf(os.Stderr, "Bias table: %s\nProfile:    %s\n", bias.Path(cfg.NHalf), profilePath)
	fmt.Fprintf(os.Stderr, "Attack with: recovery -samples <file> -n-half %d -q %d -bias-dir %s -profile %s\n",
		cfg.NHalf, p.Q, *dataDir, profilePath)
}

func writeFile(path string, write func(*os.File) error) error {
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

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
