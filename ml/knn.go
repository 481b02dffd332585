package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// KNN is a fitted k-nearest-neighbour classifier. Samples are stored in
// scaled space, exactly as they were passed to fit.
type KNN struct {
	NNeighbors int         `json:"n_neighbors"`
	Weights    string      `json:"weights"`
	P          float64     `json:"p"`
	Samples    [][]float64 `json:"samples"`
	Labels     []int       `json:"labels"`
}

type neighbor struct {
	index    int
	distance float64
}

func (k *KNN) Predict(features ScaledVector) (int, float64, error) {
	if len(k.Samples) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	neighbors := make([]neighbor, len(k.Samples))
	for i, sample := range k.Samples {
		if len(sample) != NumFeatures {
			return 0, 0, fmt.Errorf("sample %d has %d features, want %d", i, len(sample), NumFeatures)
		}
		neighbors[i] = neighbor{index: i, distance: minkowski(features[:], sample, k.p())}
	}
	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].distance < neighbors[b].distance
	})

	n := k.NNeighbors
	if n > len(neighbors) {
		n = len(neighbors)
	}
	votes := k.vote(neighbors[:n])

	// ties resolve to the smaller label
	bestLabel, bestVote, total := LabelNotPotable, -1.0, 0.0
	for _, label := range []int{LabelNotPotable, LabelPotable} {
		total += votes[label]
		if votes[label] > bestVote {
			bestLabel = label
			bestVote = votes[label]
		}
	}
	if total == 0 {
		return bestLabel, 0, nil
	}
	return bestLabel, bestVote / total, nil
}

func (k *KNN) vote(nearest []neighbor) map[int]float64 {
	votes := make(map[int]float64, 2)
	if k.Weights != WeightsDistance {
		for _, nb := range nearest {
			votes[k.Labels[nb.index]]++
		}
		return votes
	}

	exact := false
	for _, nb := range nearest {
		if nb.distance == 0 {
			exact = true
			break
		}
	}
	for _, nb := range nearest {
		switch {
		case exact && nb.distance == 0:
			votes[k.Labels[nb.index]]++
		case !exact:
			votes[k.Labels[nb.index]] += 1 / nb.distance
		}
	}
	return votes
}

func (k *KNN) p() float64 {
	if k.P <= 0 {
		return 2
	}
	return k.P
}

func (k *KNN) validate() error {
	if len(k.Samples) == 0 {
		return errors.New("no samples")
	}
	if len(k.Samples) != len(k.Labels) {
		return fmt.Errorf("%d samples but %d labels", len(k.Samples), len(k.Labels))
	}
	if k.NNeighbors < 1 || k.NNeighbors > len(k.Samples) {
		return fmt.Errorf("n_neighbors %d out of range [1, %d]", k.NNeighbors, len(k.Samples))
	}
	switch k.Weights {
	case "":
		k.Weights = WeightsUniform
	case WeightsUniform, WeightsDistance:
	default:
		return fmt.Errorf("unsupported weights %q", k.Weights)
	}
	for i, sample := range k.Samples {
		if len(sample) != NumFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(sample), NumFeatures)
		}
	}
	for i, label := range k.Labels {
		if !validLabel(label) {
			return fmt.Errorf("label %d is %d, want 0 or 1", i, label)
		}
	}
	return nil
}

// Load reads a fitted KNN exported as JSON.
func (k *KNN) Load(path string) error {
	payload, err := readArtifact(path)
	if err != nil {
		return err
	}
	var model KNN
	if err := json.Unmarshal(payload, &model); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	if err := model.validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	*k = model
	return nil
}

func minkowski(a, b []float64, p float64) float64 {
	switch p {
	case 1:
		sum := 0.0
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	case 2:
		sum := 0.0
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}
	sum := 0.0
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), p)
	}
	return math.Pow(sum, 1/p)
}
