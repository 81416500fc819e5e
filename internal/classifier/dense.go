package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// DenseFormat identifies the JSON export understood by LoadDense.
const DenseFormat = "dense-v1"

// DenseSpec is the on-disk description of a feed-forward network. Kernels use the
// Keras layout: Weights[input][unit].
type DenseSpec struct {
	Format     string         `json:"format"`
	InputDim   int            `json:"input_dim"`
	Normalizer *Normalizer    `json:"normalizer,omitempty"`
	Layers     []LayerSpec    `json:"layers"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Normalizer standardises inputs as (x - Mean) / Scale before the first layer.
type Normalizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LayerSpec describes one fully connected layer.
type LayerSpec struct {
	Activation string      `json:"activation"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

// Dense evaluates a DenseSpec in memory.
type Dense struct {
	spec DenseSpec
	acts []func(float64) float64
}

// LoadDense reads and validates a dense-v1 artifact.
func LoadDense(path string) (*Dense, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var spec DenseSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return NewDense(spec)
}

// ValidateDense reports whether path holds a loadable dense-v1 artifact.
func ValidateDense(path string) error {
	_, err := LoadDense(path)
	return err
}

// NewDense validates spec and returns a ready classifier.
func NewDense(spec DenseSpec) (*Dense, error) {
	if spec.Format != DenseFormat {
		return nil, fmt.Errorf("unsupported model format %q", spec.Format)
	}
	if spec.InputDim <= 0 {
		return nil, errors.New("model input_dim must be positive")
	}
	if len(spec.Layers) == 0 {
		return nil, errors.New("model has no layers")
	}
	if n := spec.Normalizer; n != nil {
		if len(n.Mean) != spec.InputDim || len(n.Scale) != spec.InputDim {
			return nil, fmt.Errorf("normalizer width must be %d", spec.InputDim)
		}
		for i, s := range n.Scale {
			if s == 0 {
				return nil, fmt.Errorf("normalizer scale[%d] is zero", i)
			}
		}
	}

	acts := make([]func(float64) float64, len(spec.Layers))
	width := spec.InputDim
	for i, layer := range spec.Layers {
		if len(layer.Weights) != width {
			return nil, fmt.Errorf("layer %d: kernel has %d rows, want %d", i, len(layer.Weights), width)
		}
		units := len(layer.Bias)
		if units == 0 {
			return nil, fmt.Errorf("layer %d: empty bias", i)
		}
		for r, row := range layer.Weights {
			if len(row) != units {
				return nil, fmt.Errorf("layer %d: kernel row %d has %d units, want %d", i, r, len(row), units)
			}
		}
		act, err := activation(layer.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		acts[i] = act
		width = units
	}
	return &Dense{spec: spec, acts: acts}, nil
}

// InputDim reports the row width the network accepts.
func (d *Dense) InputDim() int {
	return d.spec.InputDim
}

// Predict runs a forward pass for every row.
func (d *Dense) Predict(ctx context.Context, batch [][]float32) ([][]float32, error) {
	out := make([][]float32, 0, len(batch))
	for i, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) != d.spec.InputDim {
			return nil, fmt.Errorf("row %d: %w: got %d values, want %d", i, ErrShapeMismatch, len(row), d.spec.InputDim)
		}
		out = append(out, d.forward(row))
	}
	return out, nil
}

func (d *Dense) forward(row []float32) []float32 {
	x := make([]float64, len(row))
	for i, v := range row {
		x[i] = float64(v)
		if n := d.spec.Normalizer; n != nil {
			x[i] = (x[i] - n.Mean[i]) / n.Scale[i]
		}
	}
	for li, layer := range d.spec.Layers {
		y := make([]float64, len(layer.Bias))
		copy(y, layer.Bias)
		for in, weights := range layer.Weights {
			for u, w := range weights {
				y[u] += x[in] * w
			}
		}
		for u := range y {
			y[u] = d.acts[li](y[u])
		}
		x = y
	}
	result := make([]float32, len(x))
	for i, v := range x {
		result[i] = float32(v)
	}
	return result
}

func activation(name string) (func(float64) float64, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return func(v float64) float64 { return v }, nil
	case "relu":
		return func(v float64) float64 { return math.Max(0, v) }, nil
	case "sigmoid":
		return func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}
