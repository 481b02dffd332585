package ml

const (
	LabelNotPotable = 0
	LabelPotable    = 1
)

// Classifier returns a potability label and the share of the vote behind it.
type Classifier interface {
	Predict(features ScaledVector) (int, float64, error)
}

func validLabel(label int) bool {
	return label == LabelNotPotable || label == LabelPotable
}
