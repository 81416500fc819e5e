package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Mode selects how the categorical fields reach the classifier.
type Mode string

const (
	// ModeOrdinal encodes Geography and Gender through a versioned CategoryTable.
	ModeOrdinal Mode = "ordinal"
	// ModeCompat reproduces the legacy alignment: the one-hot columns never match the
	// expected raw names, so Geography and Gender are always filled with 0.
	ModeCompat Mode = "compat"
)

// ErrUnknownMode is returned by ParseMode for unsupported mode names.
var ErrUnknownMode = errors.New("unknown encoding mode")

// ParseMode converts a configuration value into a Mode. Empty selects ModeOrdinal.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ModeOrdinal):
		return ModeOrdinal, nil
	case string(ModeCompat):
		return ModeCompat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
	}
}

// RawInput is one prediction request as supplied by the form.
type RawInput struct {
	CreditScore     int     `json:"CreditScore"`
	Geography       string  `json:"Geography"`
	Gender          string  `json:"Gender"`
	Age             int     `json:"Age"`
	Tenure          int     `json:"Tenure"`
	Balance         float64 `json:"Balance"`
	NumOfProducts   int     `json:"NumOfProducts"`
	HasCrCard       int     `json:"HasCrCard"`
	IsActiveMember  int     `json:"IsActiveMember"`
	EstimatedSalary float64 `json:"EstimatedSalary"`
}

// Vector is the aligned classifier input.
type Vector [Width]float32

// Slice returns the vector as a slice, the shape classifiers accept.
func (v Vector) Slice() []float32 {
	out := make([]float32, Width)
	copy(out, v[:])
	return out
}

// Frame is the named column set produced before alignment.
type Frame map[string]float32

// EncodingError reports a required field that is missing or of the wrong kind.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Field, e.Reason)
}

// Encoder turns RawInput into the fixed-order vector. It holds no mutable state.
type Encoder struct {
	mode  Mode
	table CategoryTable
}

// NewEncoder returns an encoder for the given mode using TableV1.
func NewEncoder(mode Mode) (*Encoder, error) {
	switch mode {
	case ModeOrdinal, ModeCompat:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return &Encoder{mode: mode, table: TableV1}, nil
}

// Mode reports the active categorical encoding mode.
func (e *Encoder) Mode() Mode {
	return e.mode
}

// Table exposes the category table in use.
func (e *Encoder) Table() CategoryTable {
	return e.table
}

// Encode expands and aligns raw into the classifier vector.
func (e *Encoder) Encode(raw RawInput) (Vector, error) {
	frame, err := e.Expand(raw)
	if err != nil {
		return Vector{}, err
	}
	return Align(frame), nil
}

// Expand builds the named columns: numeric fields as-is, one dummy column per categorical
// value, and in ModeOrdinal the coded categorical columns themselves.
func (e *Encoder) Expand(raw RawInput) (Frame, error) {
	numeric := []struct {
		name  string
		value float64
	}{
		{CreditScore, float64(raw.CreditScore)},
		{Age, float64(raw.Age)},
		{Tenure, float64(raw.Tenure)},
		{Balance, raw.Balance},
		{NumOfProducts, float64(raw.NumOfProducts)},
		{HasCrCard, float64(raw.HasCrCard)},
		{IsActiveMember, float64(raw.IsActiveMember)},
		{EstimatedSalary, raw.EstimatedSalary},
	}

	frame := make(Frame, Width+len(e.table.Codes)*3)
	for _, col := range numeric {
		if math.IsNaN(col.value) || math.IsInf(col.value, 0) {
			return nil, &EncodingError{Field: col.name, Reason: "not a finite number"}
		}
		frame[col.name] = float32(col.value)
	}

	categorical := []struct {
		name  string
		value string
	}{
		{Geography, raw.Geography},
		{Gender, raw.Gender},
	}
	for _, col := range categorical {
		value := strings.TrimSpace(col.value)
		if value == "" {
			return nil, &EncodingError{Field: col.name, Reason: "missing value"}
		}
		value, known := e.table.canonical(col.name, value)
		frame[DummyColumn(col.name, value)] = 1

		if e.mode != ModeOrdinal {
			continue
		}
		if !known {
			return nil, &EncodingError{
				Field:  col.name,
				Reason: fmt.Sprintf("value %q not in category table %s", value, e.table.Version),
			}
		}
		frame[col.name] = e.table.Codes[col.name][value]
	}
	return frame, nil
}

// Align selects ExpectedFeatures from frame in order, filling absent columns with 0.
func Align(frame Frame) Vector {
	var v Vector
	for i, name := range ExpectedFeatures {
		v[i] = frame[name]
	}
	return v
}

// Dropped lists the columns of frame that Align discards, sorted by name.
func Dropped(frame Frame) []string {
	expected := make(map[string]struct{}, Width)
	for _, name := range ExpectedFeatures {
		expected[name] = struct{}{}
	}
	var out []string
	for name := range frame {
		if _, ok := expected[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
