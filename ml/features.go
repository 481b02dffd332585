package ml

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// NumFeatures is the width of every vector the scaler and classifier accept.
const NumFeatures = 9

// featureNames is the column order the artifacts were fitted with.
var featureNames = [NumFeatures]string{
	"ph",
	"Hardness",
	"Solids",
	"Chloramines",
	"Sulfate",
	"Conductivity",
	"Organic_carbon",
	"Trihalomethanes",
	"Turbidity",
}

// FeatureVector holds one water sample's raw measurements in fit order.
type FeatureVector [NumFeatures]float64

// ScaledVector is a FeatureVector after the scaler transform.
type ScaledVector [NumFeatures]float64

// FeatureNames returns the form field names in fit order.
func FeatureNames() []string {
	names := make([]string, NumFeatures)
	copy(names, featureNames[:])
	return names
}

// ParseFeatures reads the nine measurements out of submitted form values.
func ParseFeatures(values url.Values) (FeatureVector, error) {
	var vector FeatureVector
	for i, name := range featureNames {
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			return FeatureVector{}, fmt.Errorf("%w: %q", ErrMissingField, name)
		}
		value, err := parseMeasurement(name, raw[0])
		if err != nil {
			return FeatureVector{}, err
		}
		vector[i] = value
	}
	return vector, nil
}

func parseMeasurement(name, raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	// decimal only: hex floats such as 0x1p3 are refused
	if strings.ContainsAny(trimmed, "xX") {
		return 0, fmt.Errorf("%w: field %q has value %q", ErrInvalidNumber, name, raw)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q has value %q", ErrInvalidNumber, name, raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: field %q has value %q", ErrNonFinite, name, raw)
	}
	return value, nil
}

// Values renders the vector back into form values, mostly for tests and history.
func (v FeatureVector) Values() url.Values {
	values := make(url.Values, NumFeatures)
	for i, name := range featureNames {
		values.Set(name, strconv.FormatFloat(v[i], 'f', -1, 64))
	}
	return values
}

// Map keys each measurement by its field name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, name := range featureNames {
		out[name] = v[i]
	}
	return out
}
