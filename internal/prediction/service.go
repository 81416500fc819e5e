package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"bank-churn/backend/internal/classifier"
	"bank-churn/backend/internal/features"
)

// Threshold is the churn cut-off: scores at or above it are "leave".
const Threshold = 0.5

// Label is the binary churn outcome.
type Label string

const (
	LabelStay  Label = "not_leave"
	LabelLeave Label = "leave"
)

// Message returns the sentence shown to the user for the label.
func (l Label) Message() string {
	if l == LabelLeave {
		return "Customer will leave the bank"
	}
	return "Customer will not leave the bank"
}

// LabelFor applies the threshold to a probability.
func LabelFor(probability float32) Label {
	if probability < Threshold {
		return LabelStay
	}
	return LabelLeave
}

// Result is the outcome of a single prediction.
type Result struct {
	Probability float32
	Label       Label
	Vector      features.Vector
}

// Churn reports whether the customer is predicted to leave.
func (r Result) Churn() bool {
	return r.Label == LabelLeave
}

// PredictionError wraps a failed classifier invocation.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// ErrEmptyOutput is wrapped in a PredictionError when the classifier returns no score.
var ErrEmptyOutput = errors.New("classifier returned no score")

// ErrInvalidScore is wrapped in a PredictionError when the score is not a probability.
var ErrInvalidScore = errors.New("classifier score is not a probability")

// Service turns raw form input into a churn prediction. The classifier is injected once
// and shared read-only across requests.
type Service struct {
	encoder    *features.Encoder
	classifier classifier.Classifier
}

// NewService wires an encoder and a ready classifier.
func NewService(encoder *features.Encoder, model classifier.Classifier) (*Service, error) {
	if encoder == nil {
		return nil, errors.New("encoder required")
	}
	if model == nil {
		return nil, errors.New("classifier required")
	}
	return &Service{encoder: encoder, classifier: model}, nil
}

// Encoder exposes the feature encoder in use.
func (s *Service) Encoder() *features.Encoder {
	return s.encoder
}

// Predict encodes raw and scores it once. Encoding failures are returned as the encoder's
// *features.EncodingError; every classifier failure, including a panic, is returned as a
// *PredictionError. Nothing is retried.
func (s *Service) Predict(ctx context.Context, raw features.RawInput) (Result, error) {
	vector, err := s.encoder.Encode(raw)
	if err != nil {
		return Result{}, err
	}

	probability, err := s.score(ctx, vector)
	if err != nil {
		logrus.WithError(err).WithField("mode", s.encoder.Mode()).Warn("churn inference failed")
		return Result{}, &PredictionError{Err: err}
	}

	return Result{
		Probability: probability,
		Label:       LabelFor(probability),
		Vector:      vector,
	}, nil
}

func (s *Service) score(ctx context.Context, vector features.Vector) (probability float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()

	out, err := s.classifier.Predict(ctx, [][]float32{vector.Slice()})
	if err != nil {
		return 0, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return 0, ErrEmptyOutput
	}
	probability = out[0][0]
	if p := float64(probability); math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScore, probability)
	}
	return probability, nil
}
