package regression

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RandomForest averages bootstrap-trained CART trees grown to full depth
type RandomForest struct {
	trees      int
	seed       int64
	forest     []*regressionTree
	importance []float64
	features   int
}

// NewRandomForest creates a forest of the given size
func NewRandomForest(trees int, seed int64) *RandomForest {
	return &RandomForest{trees: trees, seed: seed}
}

func (m *RandomForest) Name() string { return NameRandomForest }

func (m *RandomForest) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)
	rng := rand.New(rand.NewSource(m.seed))

	m.forest = make([]*regressionTree, m.trees)
	total := make([]float64, p)
	for k := range m.forest {
		tree := newRegressionTree(0)
		tree.fit(rows, y, bootstrap(rng, n))
		m.forest[k] = tree
		for j, g := range normalize(tree.gains) {
			total[j] += g
		}
	}

	m.importance = normalize(total)
	m.features = p
	return nil
}

func (m *RandomForest) Predict(X mat.Matrix) ([]float64, error) {
	n, err := checkPredict(X, m.forest != nil, m.features)
	if err != nil {
		return nil, err
	}
	rows := rowsOf(X)
	out := make([]float64, n)
	for i, row := range rows {
		sum := 0.0
		for _, tree := range m.forest {
			sum += tree.predict(row)
		}
		out[i] = sum / float64(len(m.forest))
	}
	return out, nil
}

func (m *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), m.importance...)
}

// GradientBoosting fits shallow trees to successive residuals
type GradientBoosting struct {
	stages       int
	learningRate float64
	maxDepth     int
	init         float64
	trees        []*regressionTree
	importance   []float64
	features     int
}

// NewGradientBoosting creates a boosted ensemble of depth-limited trees.
// Every stage fits the full residual vector, so the result is deterministic.
func NewGradientBoosting(stages int, learningRate float64, maxDepth int) *GradientBoosting {
	return &GradientBoosting{stages: stages, learningRate: learningRate, maxDepth: maxDepth}
}

func (m *GradientBoosting) Name() string { return NameGradientBoosting }

func (m *GradientBoosting) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)
	idx := allRows(n)

	m.init = mean(y)
	current := make([]float64, n)
	for i := range current {
		current[i] = m.init
	}

	residual := make([]float64, n)
	total := make([]float64, p)
	m.trees = make([]*regressionTree, 0, m.stages)
	for s := 0; s < m.stages; s++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := newRegressionTree(m.maxDepth)
		tree.fit(rows, residual, idx)
		for i, row := range rows {
			current[i] += m.learningRate * tree.predict(row)
		}
		for j, g := range tree.gains {
			total[j] += g
		}
		m.trees = append(m.trees, tree)
	}

	m.importance = normalize(total)
	m.features = p
	return nil
}

func (m *GradientBoosting) Predict(X mat.Matrix) ([]float64, error) {
	n, err := checkPredict(X, m.trees != nil, m.features)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, row := range rowsOf(X) {
		v := m.init
		for _, tree := range m.trees {
			v += m.learningRate * tree.predict(row)
		}
		out[i] = v
	}
	return out, nil
}

func (m *GradientBoosting) FeatureImportances() []float64 {
	return append([]float64(nil), m.importance...)
}
