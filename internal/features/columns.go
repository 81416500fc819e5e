package features

import "strings"

// Width is the number of features the churn classifier was trained on.
const Width = 10

// Raw column names, in the order the classifier consumes them.
const (
	CreditScore     = "CreditScore"
	Geography       = "Geography"
	Gender          = "Gender"
	Age             = "Age"
	Tenure          = "Tenure"
	Balance         = "Balance"
	NumOfProducts   = "NumOfProducts"
	HasCrCard       = "HasCrCard"
	IsActiveMember  = "IsActiveMember"
	EstimatedSalary = "EstimatedSalary"
)

// ExpectedFeatures is the fixed column order of the encoded vector.
var ExpectedFeatures = [Width]string{
	CreditScore,
	Geography,
	Gender,
	Age,
	Tenure,
	Balance,
	NumOfProducts,
	HasCrCard,
	IsActiveMember,
	EstimatedSalary,
}

// CategoryTable maps categorical values to the numeric codes the model was trained with.
type CategoryTable struct {
	Version string
	Codes   map[string]map[string]float32
}

// TableV1 uses the alphabetical index of each category, which is what a label encoder
// fitted on the training data produces.
var TableV1 = CategoryTable{
	Version: "v1",
	Codes: map[string]map[string]float32{
		Geography: {"France": 0, "Germany": 1, "Spain": 2},
		Gender:    {"Female": 0, "Male": 1},
	},
}

// Categories lists the known values of a categorical field in code order.
func (t CategoryTable) Categories(field string) []string {
	codes := t.Codes[field]
	out := make([]string, len(codes))
	for value, code := range codes {
		idx := int(code)
		if idx >= 0 && idx < len(out) {
			out[idx] = value
		}
	}
	return out
}

// canonical returns the table spelling of value, matching case-insensitively.
func (t CategoryTable) canonical(field, value string) (string, bool) {
	for known := range t.Codes[field] {
		if strings.EqualFold(known, value) {
			return known, true
		}
	}
	return value, false
}

// DummyColumn names the one-hot indicator column for a categorical value.
func DummyColumn(field, value string) string {
	return field + "_" + value
}
