package api

import (
	"time"

	"bank-churn/backend/internal/features"
	"bank-churn/backend/internal/prediction"
)

// FormInput carries the domain constraints the form enforces before encoding.
type FormInput struct {
	CreditScore     int     `json:"CreditScore" binding:"min=350,max=850"`
	Geography       string  `json:"Geography" binding:"oneof=France Germany Spain"`
	Gender          string  `json:"Gender" binding:"oneof=Male Female"`
	Age             int     `json:"Age" binding:"min=18,max=92"`
	Tenure          int     `json:"Tenure" binding:"min=0,max=10"`
	Balance         float64 `json:"Balance" binding:"min=0,max=250900"`
	NumOfProducts   int     `json:"NumOfProducts" binding:"min=1,max=4"`
	HasCrCard       int     `json:"HasCrCard" binding:"oneof=0 1"`
	IsActiveMember  int     `json:"IsActiveMember" binding:"oneof=0 1"`
	EstimatedSalary float64 `json:"EstimatedSalary" binding:"min=11,max=200000"`
}

// FormInputFrom copies a decoded RawInput for validation.
func FormInputFrom(raw features.RawInput) FormInput {
	return FormInput(raw)
}

// PredictResponse is the API representation of a prediction.
type PredictResponse struct {
	RequestID    string    `json:"request_id"`
	Probability  float32   `json:"probability"`
	Label        string    `json:"label"`
	Churn        bool      `json:"churn"`
	Message      string    `json:"message"`
	Features     []float32 `json:"features"`
	EncodingMode string    `json:"encoding_mode"`
	LatencyMs    int64     `json:"latency_ms"`
}

// FromResult converts a prediction.Result into the DTO representation.
func FromResult(requestID string, mode features.Mode, result prediction.Result, latencyMs int64) PredictResponse {
	return PredictResponse{
		RequestID:    requestID,
		Probability:  result.Probability,
		Label:        string(result.Label),
		Churn:        result.Churn(),
		Message:      result.Label.Message(),
		Features:     result.Vector.Slice(),
		EncodingMode: string(mode),
		LatencyMs:    latencyMs,
	}
}

// EncodeResponse exposes the alignment step on its own.
type EncodeResponse struct {
	Columns      []string  `json:"columns"`
	Features     []float32 `json:"features"`
	Dropped      []string  `json:"dropped_columns"`
	EncodingMode string    `json:"encoding_mode"`
	TableVersion string    `json:"table_version"`
}

// ErrorResponse is rendered for every failed request.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Kind      string `json:"kind"`
	Field     string `json:"field,omitempty"`
	Error     string `json:"error"`
}

// PredictionEvent is the websocket payload answering one submitted form.
type PredictionEvent struct {
	Type      string           `json:"type"`
	Result    *PredictResponse `json:"result,omitempty"`
	Error     *ErrorResponse   `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// FieldDomain documents the accepted range of a form field.
type FieldDomain struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

func numericDomain(name, kind string, min, max float64) FieldDomain {
	return FieldDomain{Name: name, Kind: kind, Min: &min, Max: &max}
}

func formDomains(table features.CategoryTable) []FieldDomain {
	flags := []string{features.FormatFlag(0), features.FormatFlag(1)}
	return []FieldDomain{
		numericDomain(features.CreditScore, "integer", 350, 850),
		{Name: features.Geography, Kind: "category", Options: table.Categories(features.Geography)},
		{Name: features.Gender, Kind: "category", Options: []string{"Male", "Female"}},
		numericDomain(features.Age, "integer", 18, 92),
		numericDomain(features.Tenure, "integer", 0, 10),
		numericDomain(features.Balance, "number", 0, 250900),
		numericDomain(features.NumOfProducts, "integer", 1, 4),
		{Name: features.HasCrCard, Kind: "flag", Options: flags},
		{Name: features.IsActiveMember, Kind: "flag", Options: flags},
		numericDomain(features.EstimatedSalary, "number", 11, 200000),
	}
}
