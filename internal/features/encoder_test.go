package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() RawInput {
	return RawInput{
		CreditScore:     650,
		Geography:       "France",
		Gender:          "Female",
		Age:             40,
		Tenure:          5,
		Balance:         50000,
		NumOfProducts:   2,
		HasCrCard:       1,
		IsActiveMember:  1,
		EstimatedSalary: 60000,
	}
}

func mustEncoder(t *testing.T, mode Mode) *Encoder {
	t.Helper()
	enc, err := NewEncoder(mode)
	require.NoError(t, err)
	return enc
}

func TestEncodeFixedOrder(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		expected Vector
	}{
		{"ordinal", ModeOrdinal, Vector{650, 0, 0, 40, 5, 50000, 2, 1, 1, 60000}},
		{"compat", ModeCompat, Vector{650, 0, 0, 40, 5, 50000, 2, 1, 1, 60000}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := mustEncoder(t, tc.mode).Encode(sampleInput())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
			assert.Len(t, v.Slice(), Width)
		})
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	for _, mode := range []Mode{ModeOrdinal, ModeCompat} {
		enc := mustEncoder(t, mode)
		first, err := enc.Encode(sampleInput())
		require.NoError(t, err)
		second, err := enc.Encode(sampleInput())
		require.NoError(t, err)
		assert.Equal(t, first, second, "mode %s", mode)
	}
}

func TestEncodeCreditScoreBounds(t *testing.T) {
	enc := mustEncoder(t, ModeOrdinal)
	for _, score := range []int{350, 850} {
		raw := sampleInput()
		raw.CreditScore = score
		v, err := enc.Encode(raw)
		require.NoError(t, err)
		assert.Equal(t, float32(score), v[0])
	}
}

func TestEncodeDoesNotRangeCheck(t *testing.T) {
	raw := sampleInput()
	raw.CreditScore = 10
	raw.Age = 200
	raw.NumOfProducts = 9
	v, err := mustEncoder(t, ModeOrdinal).Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, float32(10), v[0])
	assert.Equal(t, float32(200), v[3])
	assert.Equal(t, float32(9), v[6])
}

// Germany/Female vs France/Male with everything else held fixed.
func TestCategoricalModePinned(t *testing.T) {
	a := sampleInput()
	a.Geography, a.Gender = "Germany", "Female"
	b := sampleInput()
	b.Geography, b.Gender = "France", "Male"

	t.Run("compat ignores categoricals", func(t *testing.T) {
		enc := mustEncoder(t, ModeCompat)
		va, err := enc.Encode(a)
		require.NoError(t, err)
		vb, err := enc.Encode(b)
		require.NoError(t, err)
		assert.Equal(t, va, vb)
		assert.Zero(t, va[1])
		assert.Zero(t, va[2])
	})

	t.Run("ordinal keeps categoricals", func(t *testing.T) {
		enc := mustEncoder(t, ModeOrdinal)
		va, err := enc.Encode(a)
		require.NoError(t, err)
		vb, err := enc.Encode(b)
		require.NoError(t, err)
		assert.NotEqual(t, va, vb)
		assert.Equal(t, float32(1), va[1], "Germany")
		assert.Equal(t, float32(0), va[2], "Female")
		assert.Equal(t, float32(0), vb[1], "France")
		assert.Equal(t, float32(1), vb[2], "Male")
	})
}

func TestOrdinalTableV1(t *testing.T) {
	enc := mustEncoder(t, ModeOrdinal)
	assert.Equal(t, "v1", enc.Table().Version)

	tests := []struct {
		geography string
		gender    string
		geoCode   float32
		genCode   float32
	}{
		{"France", "Female", 0, 0},
		{"Germany", "Male", 1, 1},
		{"Spain", "Female", 2, 0},
		{"spain", " male ", 2, 1},
	}
	for _, tc := range tests {
		t.Run(tc.geography+"/"+tc.gender, func(t *testing.T) {
			raw := sampleInput()
			raw.Geography, raw.Gender = tc.geography, tc.gender
			v, err := enc.Encode(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.geoCode, v[1])
			assert.Equal(t, tc.genCode, v[2])
		})
	}
}

func TestExpandProducesDummyColumns(t *testing.T) {
	frame, err := mustEncoder(t, ModeCompat).Expand(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, float32(1), frame["Geography_France"])
	assert.Equal(t, float32(1), frame["Gender_Female"])
	_, hasGeography := frame[Geography]
	assert.False(t, hasGeography)
	assert.Equal(t, []string{"Gender_Female", "Geography_France"}, Dropped(frame))
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		edit  func(*RawInput)
		field string
	}{
		{"missing geography", ModeOrdinal, func(r *RawInput) { r.Geography = "" }, Geography},
		{"blank gender", ModeCompat, func(r *RawInput) { r.Gender = "  " }, Gender},
		{"nan balance", ModeOrdinal, func(r *RawInput) { r.Balance = math.NaN() }, Balance},
		{"inf salary", ModeCompat, func(r *RawInput) { r.EstimatedSalary = math.Inf(1) }, EstimatedSalary},
		{"unmapped geography", ModeOrdinal, func(r *RawInput) { r.Geography = "Italy" }, Geography},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := sampleInput()
			tc.edit(&raw)
			_, err := mustEncoder(t, tc.mode).Encode(raw)
			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr), "got %v", err)
			assert.Equal(t, tc.field, encErr.Field)
		})
	}
}

func TestCompatAcceptsUnmappedCategory(t *testing.T) {
	raw := sampleInput()
	raw.Geography = "Italy"
	v, err := mustEncoder(t, ModeCompat).Encode(raw)
	require.NoError(t, err)
	assert.Zero(t, v[1])
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOrdinal, mode)

	mode, err = ParseMode(" COMPAT ")
	require.NoError(t, err)
	assert.Equal(t, ModeCompat, mode)

	_, err = ParseMode("onehot")
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = NewEncoder(Mode("onehot"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"France", "Germany", "Spain"}, TableV1.Categories(Geography))
	assert.Equal(t, []string{"Female", "Male"}, TableV1.Categories(Gender))
}
