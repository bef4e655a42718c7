package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testForest splits on soil moisture at 60: drier → water.
func testForest() *Forest {
	return &Forest{Trees: []Tree{
		{Nodes: []Node{
			{Feature: 2, Threshold: 60, Left: 1, Right: 2},
			{Leaf: []float64{0.1, 0.9}},
			{Leaf: []float64{0.8, 0.2}},
		}},
		{Nodes: []Node{
			{Feature: 2, Threshold: 55, Left: 1, Right: 2},
			{Leaf: []float64{0.0, 1.0}},
			{Leaf: []float64{0.6, 0.4}},
		}},
	}}
}

func TestScore(t *testing.T) {
	f := testForest()

	// dry soil: both trees vote water
	water, probNo, probWater, err := f.Score(25, 77, 50)
	require.NoError(t, err)
	assert.True(t, water)
	assert.InDelta(t, 0.05, probNo, 1e-9)
	assert.InDelta(t, 0.95, probWater, 1e-9)

	// wet soil: both trees vote no-water
	water, probNo, probWater, err = f.Score(25, 77, 70)
	require.NoError(t, err)
	assert.False(t, water)
	assert.InDelta(t, 0.7, probNo, 1e-9)
	assert.InDelta(t, 0.3, probWater, 1e-9)

	// probabilities always sum to one
	assert.InDelta(t, 1.0, probNo+probWater, 1e-9)
}

func TestScore_ProbabilityTiePredictsNoWater(t *testing.T) {
	f := &Forest{Trees: []Tree{
		{Nodes: []Node{{Leaf: []float64{0.5, 0.5}}}},
	}}

	water, probNo, probWater, err := f.Score(25, 77, 65)
	require.NoError(t, err)
	assert.False(t, water, "argmax tie resolves to class 0")
	assert.Equal(t, probNo, probWater)
}

func TestScore_BoundaryGoesLeft(t *testing.T) {
	f := testForest()
	// value equal to the threshold follows the left branch
	water, _, _, err := f.Score(25, 77, 60)
	require.NoError(t, err)
	assert.True(t, water)
}

func TestScore_CyclicTree(t *testing.T) {
	f := &Forest{Trees: []Tree{
		{Nodes: []Node{
			{Feature: 0, Threshold: 25, Left: 1, Right: 1},
			{Feature: 1, Threshold: 77, Left: 0, Right: 0},
		}},
	}}
	_, _, _, err := f.Score(25, 77, 65)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_rf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"trees": [
			{"nodes": [
				{"feature": 2, "threshold": 60, "left": 1, "right": 2},
				{"leaf": [0.1, 0.9]},
				{"leaf": [0.8, 0.2]}
			]}
		]
	}`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Trees, 1)

	water, _, probWater, err := f.Score(25, 77, 40)
	require.NoError(t, err)
	assert.True(t, water)
	assert.InDelta(t, 0.9, probWater, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"trees": []}`), 0o644))
	_, err = Load(empty)
	assert.Error(t, err)

	badLeaf := filepath.Join(dir, "badleaf.json")
	require.NoError(t, os.WriteFile(badLeaf, []byte(`{"trees": [{"nodes": [{"leaf": [1]}]}]}`), 0o644))
	_, err = Load(badLeaf)
	assert.Error(t, err)

	badChild := filepath.Join(dir, "badchild.json")
	require.NoError(t, os.WriteFile(badChild, []byte(`{"trees": [{"nodes": [{"feature": 0, "threshold": 1, "left": 5, "right": 0}]}]}`), 0o644))
	_, err = Load(badChild)
	assert.Error(t, err)
}
