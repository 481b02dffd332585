package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecisionTree is a flattened binary tree exported from a fitted classifier.
// Node 0 is the root.
type DecisionTree struct {
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	Purity     float64 `json:"purity,omitempty"`
}

func (dt *DecisionTree) Predict(features ScaledVector) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, leafConfidence(node), nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return 0, 0, errors.New("invalid tree state")
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := readArtifact(path)
	if err != nil {
		return err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	if err := validateTree(nodes); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactInvalid, path, err)
	}
	dt.nodes = nodes
	return nil
}

func validateTree(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if !validLabel(node.ClassLabel) {
				return fmt.Errorf("leaf %d has label %d", i, node.ClassLabel)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= NumFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) ||
			node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

func leafConfidence(node TreeNode) float64 {
	if node.Purity <= 0 {
		return 1
	}
	return node.Purity
}
