package langmodel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// #region readers
// ReadSymbolCSV parses a single line of 28 comma-separated probabilities.
func ReadSymbolCSV(r io.Reader) (SymbolTable, error) {
	records, err := readFloats(r)
	if err != nil {
		return SymbolTable{}, err
	}
	if len(records) == 0 {
		return SymbolTable{}, fmt.Errorf("%w: empty symbol file", ErrShape)
	}
	return NewSymbolTable(records[0])
}

// ReadTransitionCSV parses 28 lines of 28 comma-separated probabilities, row
// = current symbol, column = previous symbol.
func ReadTransitionCSV(r io.Reader) (TransitionTable, error) {
	records, err := readFloats(r)
	if err != nil {
		return TransitionTable{}, err
	}
	return NewTransitionTableFromRows(records)
}

func readFloats(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	out := make([][]float64, 0, len(rows))
	for i, row := range rows {
		vals := make([]float64, 0, len(row))
		for j, field := range row {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parse row %d col %d: %w", i, j, err)
			}
			vals = append(vals, v)
		}
		out = append(out, vals)
	}
	return out, nil
}

// #endregion readers

// #region loaders
// LoadSymbolCSV reads a symbol probability file from disk.
func LoadSymbolCSV(path string) (SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return SymbolTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	t, err := ReadSymbolCSV(f)
	if err != nil {
		return SymbolTable{}, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// LoadTransitionCSV reads a transition probability file from disk.
func LoadTransitionCSV(path string) (TransitionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return TransitionTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	t, err := ReadTransitionCSV(f)
	if err != nil {
		return TransitionTable{}, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Load reads both tables and returns the combined model.
func Load(symbolPath, transitionPath string) (*Model, error) {
	sym, err := LoadSymbolCSV(symbolPath)
	if err != nil {
		return nil, err
	}
	trans, err := LoadTransitionCSV(transitionPath)
	if err != nil {
		return nil, err
	}
	return &Model{Symbols: sym, Transitions: trans}, nil
}

// #endregion loaders
