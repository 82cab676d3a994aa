package serve

import (
	"fmt"
	"math"
)

// PatientFeatures is one prediction request. Field order matches the UCI
// Cleveland training columns; JSON tags match the dataset column names.
type PatientFeatures struct {
	Age      float64 `json:"age"`
	Sex      float64 `json:"sex"`
	Cp       float64 `json:"cp"`
	Trestbps float64 `json:"trestbps"`
	Chol     float64 `json:"chol"`
	Fbs      float64 `json:"fbs"`
	Restecg  float64 `json:"restecg"`
	Thalach  float64 `json:"thalach"`
	Exang    float64 `json:"exang"`
	Oldpeak  float64 `json:"oldpeak"`
	Slope    float64 `json:"slope"`
	Ca       float64 `json:"ca"`
	Thal     float64 `json:"thal"`
}

// Vector returns the features as a slice in training column order.
func (p PatientFeatures) Vector() []float64 {
	return []float64{
		p.Age, p.Sex, p.Cp, p.Trestbps, p.Chol, p.Fbs, p.Restecg,
		p.Thalach, p.Exang, p.Oldpeak, p.Slope, p.Ca, p.Thal,
	}
}

// ValidationError reports a field whose value is outside its clinical
// bounds. Invalid input is rejected at the boundary and never reaches the
// preprocessor or the model.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s, got %v", e.Field, e.Reason, e.Value)
}

// Validate checks every field against its bounds and returns the first
// violation found, in column order.
func (p PatientFeatures) Validate() error {
	checks := []struct {
		field  string
		value  float64
		ok     bool
		reason string
	}{
		{"age", p.Age, p.Age >= 0 && p.Age <= 120, "must be between 0 and 120"},
		{"sex", p.Sex, isBinary(p.Sex), "must be 0 or 1"},
		{"cp", p.Cp, isCode(p.Cp, 3), "must be an integer between 0 and 3"},
		{"trestbps", p.Trestbps, p.Trestbps >= 0, "must be non-negative"},
		{"chol", p.Chol, p.Chol >= 0, "must be non-negative"},
		{"fbs", p.Fbs, isBinary(p.Fbs), "must be 0 or 1"},
		{"restecg", p.Restecg, isCode(p.Restecg, 2), "must be an integer between 0 and 2"},
		{"thalach", p.Thalach, p.Thalach >= 0, "must be non-negative"},
		{"exang", p.Exang, isBinary(p.Exang), "must be 0 or 1"},
		{"oldpeak", p.Oldpeak, p.Oldpeak >= 0, "must be non-negative"},
		{"slope", p.Slope, isCode(p.Slope, 2), "must be an integer between 0 and 2"},
		{"ca", p.Ca, isCode(p.Ca, 4), "must be an integer between 0 and 4"},
		{"thal", p.Thal, isCode(p.Thal, 3), "must be an integer between 0 and 3"},
	}
	for _, c := range checks {
		if !c.ok {
			return &ValidationError{Field: c.field, Value: c.value, Reason: c.reason}
		}
	}
	return nil
}

func isBinary(v float64) bool {
	return v == 0 || v == 1
}

// isCode accepts whole-number category codes in [0, max]. NaN fails every
// comparison and is rejected like any other out-of-range value.
func isCode(v float64, max float64) bool {
	return v == math.Trunc(v) && v >= 0 && v <= max
}
