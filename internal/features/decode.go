package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode builds a RawInput from loosely typed fields, such as a decoded JSON object.
// Every field is required. Range checks are left to the form layer.
func Decode(fields map[string]any) (RawInput, error) {
	var (
		raw RawInput
		err error
	)
	ints := []struct {
		name string
		dst  *int
	}{
		{CreditScore, &raw.CreditScore},
		{Age, &raw.Age},
		{Tenure, &raw.Tenure},
		{NumOfProducts, &raw.NumOfProducts},
	}
	for _, f := range ints {
		if *f.dst, err = intField(fields, f.name); err != nil {
			return RawInput{}, err
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{Balance, &raw.Balance},
		{EstimatedSalary, &raw.EstimatedSalary},
	}
	for _, f := range floats {
		if *f.dst, err = floatField(fields, f.name); err != nil {
			return RawInput{}, err
		}
	}

	if raw.HasCrCard, err = flagField(fields, HasCrCard); err != nil {
		return RawInput{}, err
	}
	if raw.IsActiveMember, err = flagField(fields, IsActiveMember); err != nil {
		return RawInput{}, err
	}
	if raw.Geography, err = stringField(fields, Geography); err != nil {
		return RawInput{}, err
	}
	if raw.Gender, err = stringField(fields, Gender); err != nil {
		return RawInput{}, err
	}
	return raw, nil
}

// ParseFlag reads a 0/1 field in any of the forms the form offers: "0", "1",
// "0-No", "1-Yes", "true", "false".
func ParseFlag(value string) (int, error) {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, '-'); idx > 0 {
		value = value[:idx]
	}
	switch strings.ToLower(value) {
	case "0", "false", "no":
		return 0, nil
	case "1", "true", "yes":
		return 1, nil
	}
	return 0, fmt.Errorf("invalid flag %q", value)
}

func lookup(fields map[string]any, name string) (any, error) {
	value, ok := fields[name]
	if !ok || value == nil {
		return nil, &EncodingError{Field: name, Reason: "missing value"}
	}
	return value, nil
}

func number(name string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, &EncodingError{Field: name, Reason: fmt.Sprintf("not a number: %q", v.String())}
		}
		return f, nil
	default:
		return 0, &EncodingError{Field: name, Reason: fmt.Sprintf("expected number, got %T", value)}
	}
}

func intField(fields map[string]any, name string) (int, error) {
	value, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	f, err := number(name, value)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, &EncodingError{Field: name, Reason: fmt.Sprintf("expected integer, got %v", f)}
	}
	return int(f), nil
}

func floatField(fields map[string]any, name string) (float64, error) {
	value, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	return number(name, value)
}

func flagField(fields map[string]any, name string) (int, error) {
	value, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		flag, err := ParseFlag(v)
		if err != nil {
			return 0, &EncodingError{Field: name, Reason: err.Error()}
		}
		return flag, nil
	}
	f, err := number(name, value)
	if err != nil {
		return 0, err
	}
	if f != 0 && f != 1 {
		return 0, &EncodingError{Field: name, Reason: fmt.Sprintf("expected 0 or 1, got %v", f)}
	}
	return int(f), nil
}

func stringField(fields map[string]any, name string) (string, error) {
	value, err := lookup(fields, name)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", &EncodingError{Field: name, Reason: fmt.Sprintf("expected string, got %T", value)}
	}
	if strings.TrimSpace(s) == "" {
		return "", &EncodingError{Field: name, Reason: "missing value"}
	}
	return s, nil
}

// FormatFlag renders a 0/1 flag the way the form's select boxes label it.
func FormatFlag(flag int) string {
	if flag == 0 {
		return strconv.Itoa(flag) + "-No"
	}
	return strconv.Itoa(flag) + "-Yes"
}
