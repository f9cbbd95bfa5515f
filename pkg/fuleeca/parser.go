package fuleeca

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// SampleParser defines the interface for loading a sample set from a source.
type SampleParser interface {
	// ParseSamples reads the reference key and the signature samples from
	// source, centering every value into (-q/2, q/2].
	ParseSamples(source string, params Parameters) (*SampleSet, error)
}

// CSVParser parses the delimited text layout written by the FuLeeca
// reference signer:
//
//	a
//	b
//	v1 of signature 1
//	v2 of signature 1
//	...
//
// Every row holds N/2 integers in [0, q).
type CSVParser struct {
	Comma rune // field delimiter (default: ',')
	Limit int  // number of signatures to read (default: 0 = all)
}

// ParseSamples parses samples from a CSV file.
func (p *CSVParser) ParseSamples(csvFile string, params Parameters) (*SampleSet, error) {
	file, err := os.Open(csvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file, params)
}

// Parse parses samples from r.
func (p *CSVParser) Parse(r io.Reader, params Parameters) (*SampleSet, error) {
	nHalf := params.NHalf()
	if nHalf <= 0 {
		return nil, &ParameterError{Category: params.Category, Reason: "empty vector length"}
	}

	reader := csv.NewReader(r)
	reader.Comma = ','
	if p.Comma != 0 {
		reader.Comma = p.Comma
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	maxRows := -1
	if p.Limit > 0 {
		maxRows = 2*p.Limit + 2
	}

	b := newSetBuilder(nHalf, params.Q)
	for row := 0; maxRows < 0 || row < maxRows; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Row: row, Reason: err.Error()}
		}
		values, err := parseRow(record, row, nHalf, params.Q)
		if err != nil {
			return nil, err
		}
		b.add(values)
	}

	return b.build(p.Limit)
}

// JSONParser parses samples from JSON files.
//
// Expected format:
//
//	{
//	  "a": [...],
//	  "b": [...],
//	  "signatures": [[[v1...], [v2...]], ...]
//	}
type JSONParser struct {
	Limit int // number of signatures to read (default: 0 = all)
}

type jsonSource struct {
	A          []int64     `json:"a"`
	B          []int64     `json:"b"`
	Signatures [][][]int64 `json:"signatures"`
}

// ParseSamples parses samples from a JSON file.
func (p *JSONParser) ParseSamples(jsonFile string, params Parameters) (*SampleSet, error) {
	file, err := os.Open(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()

	return p.Parse(file, params)
}

// Parse parses samples from r.
func (p *JSONParser) Parse(r io.Reader, params Parameters) (*SampleSet, error) {
	nHalf := params.NHalf()
	if nHalf <= 0 {
		return nil, &ParameterError{Category: params.Category, Reason: "empty vector length"}
	}

	var src jsonSource
	if err := json.NewDecoder(r).Decode(&src); err != nil {
		return nil, &FormatError{Row: -1, Reason: fmt.Sprintf("failed to parse JSON: %v", err)}
	}
	if src.A == nil || src.B == nil {
		return nil, &FormatError{Row: -1, Reason: "missing secret key vectors a and b"}
	}

	b := newSetBuilder(nHalf, params.Q)
	rows := [][]int64{src.A, src.B}
	for i, sig := range src.Signatures {
		if p.Limit > 0 && i >= p.Limit {
			break
		}
		if len(sig) != 2 {
			return nil, &FormatError{Row: 2 + 2*i, Reason: fmt.Sprintf("signature %d has %d vectors, want 2", i, len(sig))}
		}
		rows = append(rows, sig[0], sig[1])
	}
	for row, values := range rows {
		if err := checkRow(values, row, nHalf, params.Q); err != nil {
			return nil, err
		}
		b.add(values)
	}

	return b.build(p.Limit)
}

// setBuilder accumulates rows in source order: a, b, then v1/v2 pairs of
// which only v1 is kept.
type setBuilder struct {
	nHalf int
	q     int64
	rows  int
	key   SecretKey
	data  []float64
}

func newSetBuilder(nHalf int, q int64) *setBuilder {
	return &setBuilder{nHalf: nHalf, q: q}
}

func (b *setBuilder) add(values []int64) {
	switch {
	case b.rows == 0:
		b.key.A = centerAll(values, b.q)
	case b.rows == 1:
		b.key.B = centerAll(values, b.q)
	case (b.rows-2)%2 == 0:
		for _, v := range values {
			b.data = append(b.data, float64(center(v, b.q)))
		}
	}
	b.rows++
}

func (b *setBuilder) build(limit int) (*SampleSet, error) {
	if b.rows < 2 {
		return nil, &FormatError{Row: -1, Reason: fmt.Sprintf("source has %d rows, want the two secret key rows first", b.rows)}
	}
	sigRows := b.rows - 2
	if sigRows%2 != 0 {
		return nil, &FormatError{Row: b.rows - 1, Reason: fmt.Sprintf("%d signature rows do not divide into (v1, v2) pairs", sigRows)}
	}
	count := sigRows / 2
	if limit > 0 && count < limit {
		return nil, &FormatError{Row: -1, Reason: fmt.Sprintf("requested %d signatures, source has %d", limit, count)}
	}

	set := &SampleSet{Key: b.key}
	if count > 0 {
		set.Samples = mat.NewDense(count, b.nHalf, b.data)
	}
	return set, nil
}

func parseRow(record []string, row, nHalf int, q int64) ([]int64, error) {
	if len(record) != nHalf {
		return nil, &FormatError{Row: row, Reason: fmt.Sprintf("row has %d values, want %d", len(record), nHalf)}
	}
	values := make([]int64, len(record))
	for i, field := range record {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) {
				err = numErr.Err
			}
			return nil, &FormatError{Row: row, Reason: fmt.Sprintf("column %d: %q: %v", i, field, err)}
		}
		values[i] = v
	}
	if err := checkRow(values, row, nHalf, q); err != nil {
		return nil, err
	}
	return values, nil
}

func checkRow(values []int64, row, nHalf int, q int64) error {
	if len(values) != nHalf {
		return &FormatError{Row: row, Reason: fmt.Sprintf("row has %d values, want %d", len(values), nHalf)}
	}
	for i, v := range values {
		if v < 0 || v >= q {
			return &FormatError{Row: row, Reason: fmt.Sprintf("column %d: value %d outside [0, %d)", i, v, q)}
		}
	}
	return nil
}

// center maps a residue in [0, q) to (-q/2, q/2].
func center(v, q int64) int64 {
	if v > q/2 {
		return v - q
	}
	return v
}

func centerAll(values []int64, q int64) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = center(v, q)
	}
	return out
}
