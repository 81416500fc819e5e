package classifier

import (
	"context"
	"errors"
)

// Classifier scores a batch of feature rows. Implementations must be safe for
// concurrent use; inference never mutates the model.
type Classifier interface {
	Predict(ctx context.Context, batch [][]float32) ([][]float32, error)
}

// Kind names a classifier backend.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ErrShapeMismatch is returned when a row does not have the width the model expects.
var ErrShapeMismatch = errors.New("input shape mismatch")

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, batch [][]float32) ([][]float32, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, batch [][]float32) ([][]float32, error) {
	return f(ctx, batch)
}
