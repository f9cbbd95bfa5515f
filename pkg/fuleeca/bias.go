package fuleeca

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// BiasTable holds the expected second moment E[x_i²] of every coefficient of
// the signing vector x. Its non-constant shape is what makes the toric
// diagonals of the second moment separable.
type BiasTable []float64

// BiasSource provides the bias table for a vector length.
type BiasSource interface {
	BiasTable(nHalf int) (BiasTable, error)
}

// BiasDir loads precomputed tables named D<nHalf>.txt from a directory.
type BiasDir struct {
	Dir string
}

// BiasTable reads Dir/D<nHalf>.txt.
func (d BiasDir) BiasTable(nHalf int) (BiasTable, error) {
	table, err := LoadBiasTable(d.Path(nHalf))
	if err != nil {
		return nil, err
	}
	if len(table) != nHalf {
		return nil, fmt.Errorf("bias table %s has %d entries, want %d", d.Path(nHalf), len(table), nHalf)
	}
	return table, nil
}

// Path returns the file a table of length nHalf is read from.
func (d BiasDir) Path(nHalf int) string {
	return filepath.Join(d.Dir, fmt.Sprintf("D%d.txt", nHalf))
}

// StaticBias serves a single in-memory table.
type StaticBias BiasTable

// BiasTable returns the table when its length matches.
func (s StaticBias) BiasTable(nHalf int) (BiasTable, error) {
	if len(s) != nHalf {
		return nil, fmt.Errorf("bias table has %d entries, want %d", len(s), nHalf)
	}
	return BiasTable(s), nil
}

// ReadBiasTable parses whitespace separated reals.
func ReadBiasTable(r io.Reader) (BiasTable, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	var table BiasTable
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("bias entry %d: %w", len(table), err)
		}
		table = append(table, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bias table: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("bias table is empty")
	}
	return table, nil
}

// LoadBiasTable reads a bias table file.
func LoadBiasTable(path string) (BiasTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bias table: %w", err)
	}
	defer file.Close()
	return ReadBiasTable(file)
}

// WriteBiasTable writes one entry per line in the format ReadBiasTable reads.
func WriteBiasTable(w io.Writer, table BiasTable) error {
	bw := bufio.NewWriter(w)
	for _, v := range table {
		if _, err := bw.WriteString(strconv.FormatFloat(v, 'e', 18, 64) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
