package regression

import (
	"math/rand"
	"sort"
)

// treeNode is a binary split or, when left is nil, a leaf
type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

// regressionTree is a CART tree grown on squared error
type regressionTree struct {
	maxDepth       int // 0 grows until leaves are pure
	minSamplesLeaf int
	root           *treeNode
	gains          []float64
}

func newRegressionTree(maxDepth int) *regressionTree {
	return &regressionTree{maxDepth: maxDepth, minSamplesLeaf: 1}
}

// fit grows the tree on the rows selected by idx
func (t *regressionTree) fit(rows [][]float64, y []float64, idx []int) {
	t.gains = make([]float64, len(rows[0]))
	t.root = t.grow(rows, y, idx, 0)
}

func (t *regressionTree) grow(rows [][]float64, y []float64, idx []int, depth int) *treeNode {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	count := float64(len(idx))
	node := &treeNode{value: sum / count}
	parentSSE := sumSq - sum*sum/count

	if (t.maxDepth > 0 && depth >= t.maxDepth) || len(idx) < 2*t.minSamplesLeaf || parentSSE <= 1e-12 {
		return node
	}

	feature, threshold, bestSSE, found := t.bestSplit(rows, y, idx)
	if !found || parentSSE-bestSSE <= 1e-12 {
		return node
	}
	t.gains[feature] += parentSSE - bestSSE

	var left, right []int
	for _, i := range idx {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.feature = feature
	node.threshold = threshold
	node.left = t.grow(rows, y, left, depth+1)
	node.right = t.grow(rows, y, right, depth+1)
	return node
}

// bestSplit scans every feature for the threshold minimising child SSE
func (t *regressionTree) bestSplit(rows [][]float64, y []float64, idx []int) (int, float64, float64, bool) {
	n := len(idx)
	sorted := make([]int, n)
	bestFeature, bestThreshold, bestSSE := -1, 0.0, 0.0

	for f := range rows[idx[0]] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return rows[sorted[a]][f] < rows[sorted[b]][f] })

		totalSum, totalSq := 0.0, 0.0
		for _, i := range sorted {
			totalSum += y[i]
			totalSq += y[i] * y[i]
		}

		leftSum, leftSq := 0.0, 0.0
		for k := 1; k < n; k++ {
			prev := sorted[k-1]
			leftSum += y[prev]
			leftSq += y[prev] * y[prev]

			if k < t.minSamplesLeaf || n-k < t.minSamplesLeaf {
				continue
			}
			lo, hi := rows[prev][f], rows[sorted[k]][f]
			if lo == hi {
				continue
			}

			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := leftSq - leftSum*leftSum/float64(k) + rightSq - rightSum*rightSum/float64(n-k)
			if bestFeature < 0 || sse < bestSSE {
				bestFeature, bestThreshold, bestSSE = f, (lo+hi)/2, sse
			}
		}
	}
	return bestFeature, bestThreshold, bestSSE, bestFeature >= 0
}

func (t *regressionTree) predict(row []float64) float64 {
	node := t.root
	for node.left != nil {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

// bootstrap draws n row indices with replacement
func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
