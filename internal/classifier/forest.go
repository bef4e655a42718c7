// Package classifier scores the 3-feature watering vector against a
// pretrained random forest exported to JSON. Scoring only: training and the
// export itself happen offline.
package classifier

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// Node is one decision-tree node. Internal nodes carry a feature index,
// split threshold and child offsets; leaves carry the class distribution
// [probNoWater, probWater].
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Leaf      []float64 `json:"leaf,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a loaded model. Read-only after Load; safe for concurrent use.
type Forest struct {
	Trees []Tree `json:"trees"`
}

const numFeatures = 3

// Load reads a forest from path. A missing or malformed file returns an
// error; callers treat that as "no classifier configured", never fatal.
func Load(path string) (*Forest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	log.Printf("classifier: loaded forest with %d trees from %s", len(f.Trees), path)
	return &f, nil
}

func (f *Forest) validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for ti, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Leaf != nil {
				if len(n.Leaf) != 2 {
					return fmt.Errorf("tree %d node %d: leaf wants 2 class probabilities, has %d", ti, ni, len(n.Leaf))
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= numFeatures {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			if n.Left < 0 || n.Left >= len(tree.Nodes) || n.Right < 0 || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

// Score walks every tree with the feature vector, averages the leaf class
// distributions and returns the majority class with its probabilities.
func (f *Forest) Score(temperature, humidity, soilMoisture float64) (bool, float64, float64, error) {
	features := [numFeatures]float64{temperature, humidity, soilMoisture}

	var probNo, probWater float64
	for ti, tree := range f.Trees {
		leaf, err := walk(tree, features)
		if err != nil {
			return false, 0, 0, fmt.Errorf("tree %d: %w", ti, err)
		}
		probNo += leaf[0]
		probWater += leaf[1]
	}
	n := float64(len(f.Trees))
	probNo /= n
	probWater /= n
	// exact tie resolves to class 0, matching argmax over [probNo, probWater]
	return probWater > probNo, probNo, probWater, nil
}

func walk(tree Tree, features [numFeatures]float64) ([]float64, error) {
	idx := 0
	// each step descends one level; more steps than nodes means a cycle
	for steps := 0; steps <= len(tree.Nodes); steps++ {
		n := tree.Nodes[idx]
		if n.Leaf != nil {
			return n.Leaf, nil
		}
		if features[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return nil, fmt.Errorf("no leaf reached, tree is cyclic")
}
