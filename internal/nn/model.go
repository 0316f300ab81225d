package nn

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/kartoza/decision-forecast/internal/apperr"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Regressor is a feed-forward network with ReLU hidden layers and a single
// linear output, trained with Adam on mean squared error.
type Regressor struct {
	// Architecture
	inputDim   int
	hiddenDims []int

	// Weights: layer l maps (rows x cols) = (fan in x fan out)
	weights []*mat.Dense
	biases  [][]float64

	// Adam moments
	mW, vW []*mat.Dense
	mB, vB [][]float64
	step   int

	// Training
	learningRate float64
	epochs       int
	batchSize    int
	rng          *rand.Rand

	// Target standardization
	yMean, yStd float64

	loss    float64
	trained bool
	mu      sync.RWMutex
}

// Config holds network configuration
type Config struct {
	InputDim     int
	HiddenDims   []int
	LearningRate float64
	Epochs       int
	BatchSize    int
	Seed         int64
}

// DefaultConfig returns the defaults used by the regression panel
func DefaultConfig(inputDim int) Config {
	return Config{
		InputDim:     inputDim,
		HiddenDims:   []int{100, 50},
		LearningRate: 0.001,
		Epochs:       200,
		BatchSize:    32,
		Seed:         42,
	}
}

// New creates an untrained network
func New(cfg Config) (*Regressor, error) {
	if cfg.InputDim <= 0 {
		return nil, fmt.Errorf("%w: input dimension must be positive", apperr.ErrInvalidInput)
	}
	for _, h := range cfg.HiddenDims {
		if h <= 0 {
			return nil, fmt.Errorf("%w: hidden layer sizes must be positive", apperr.ErrInvalidInput)
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 200
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}

	r := &Regressor{
		inputDim:     cfg.InputDim,
		hiddenDims:   append([]int(nil), cfg.HiddenDims...),
		learningRate: cfg.LearningRate,
		epochs:       cfg.Epochs,
		batchSize:    cfg.BatchSize,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		yStd:         1,
	}
	r.initWeights()
	return r, nil
}

// initWeights initializes all weights with Xavier initialization
func (r *Regressor) initWeights() {
	sizes := append(append([]int{r.inputDim}, r.hiddenDims...), 1)
	layers := len(sizes) - 1

	r.weights = make([]*mat.Dense, layers)
	r.biases = make([][]float64, layers)
	r.mW = make([]*mat.Dense, layers)
	r.vW = make([]*mat.Dense, layers)
	r.mB = make([][]float64, layers)
	r.vB = make([][]float64, layers)

	for l := 0; l < layers; l++ {
		rows, cols := sizes[l], sizes[l+1]
		scale := math.Sqrt(6.0 / float64(rows+cols))
		backing := make([]float64, rows*cols)
		for i := range backing {
			backing[i] = (r.rng.Float64()*2 - 1) * scale
		}
		r.weights[l] = mat.NewDense(rows, cols, backing)
		r.biases[l] = make([]float64, cols)
		r.mW[l] = mat.NewDense(rows, cols, nil)
		r.vW[l] = mat.NewDense(rows, cols, nil)
		r.mB[l] = make([]float64, cols)
		r.vB[l] = make([]float64, cols)
	}
	r.step = 0
}

// forward returns the pre-activations of every layer and the activations
// including the input at index 0.
func (r *Regressor) forward(x *mat.Dense) (zs, as []*mat.Dense) {
	as = append(as, x)
	a := x
	last := len(r.weights) - 1
	for l, w := range r.weights {
		rows, _ := a.Dims()
		_, cols := w.Dims()

		// Linear: z = a * W + b
		z := mat.NewDense(rows, cols, nil)
		z.Mul(a, w)
		b := r.biases[l]
		z.Apply(func(_, j int, v float64) float64 { return v + b[j] }, z)
		zs = append(zs, z)

		// Activation: ReLU for hidden layers, none for output
		if l < last {
			h := mat.NewDense(rows, cols, nil)
			h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
			a = h
		} else {
			a = z
		}
		as = append(as, a)
	}
	return zs, as
}

// Train fits the network to the given rows and targets
func (r *Regressor) Train(inputs [][]float64, targets []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(inputs) == 0 || len(inputs) != len(targets) {
		return fmt.Errorf("%w: %d inputs for %d targets", apperr.ErrInvalidInput, len(inputs), len(targets))
	}
	for i, row := range inputs {
		if len(row) != r.inputDim {
			return fmt.Errorf("%w: row %d has %d values, expected %d", apperr.ErrInvalidInput, i, len(row), r.inputDim)
		}
	}

	r.yMean, r.yStd = meanStd(targets)
	scaled := make([]float64, len(targets))
	for i, y := range targets {
		scaled[i] = (y - r.yMean) / r.yStd
	}

	r.initWeights()
	n := len(inputs)
	for epoch := 0; epoch < r.epochs; epoch++ {
		order := r.rng.Perm(n)
		totalLoss := 0.0
		for start := 0; start < n; start += r.batchSize {
			end := start + r.batchSize
			if end > n {
				end = n
			}
			loss := r.trainBatch(inputs, scaled, order[start:end])
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return fmt.Errorf("non-finite loss at epoch %d", epoch)
			}
			totalLoss += loss * float64(end-start)
		}
		r.loss = totalLoss / float64(n)
	}

	r.trained = true
	return nil
}

// trainBatch runs one Adam step on the selected rows and returns the batch loss
func (r *Regressor) trainBatch(inputs [][]float64, targets []float64, idx []int) float64 {
	b := len(idx)
	x := mat.NewDense(b, r.inputDim, nil)
	for i, k := range idx {
		x.SetRow(i, inputs[k])
	}

	zs, as := r.forward(x)
	out := as[len(as)-1]

	// Gradient of 0.5 * mean squared error
	delta := mat.NewDense(b, 1, nil)
	loss := 0.0
	for i, k := range idx {
		d := out.At(i, 0) - targets[k]
		loss += d * d
		delta.Set(i, 0, d/float64(b))
	}
	loss /= float64(b)

	r.step++
	for l := len(r.weights) - 1; l >= 0; l-- {
		rows, cols := r.weights[l].Dims()
		gradW := mat.NewDense(rows, cols, nil)
		gradW.Mul(as[l].T(), delta)

		gradB := make([]float64, cols)
		for i := 0; i < b; i++ {
			for j := 0; j < cols; j++ {
				gradB[j] += delta.At(i, j)
			}
		}

		// Propagate before the weights of this layer move
		var prev *mat.Dense
		if l > 0 {
			prev = mat.NewDense(b, rows, nil)
			prev.Mul(delta, r.weights[l].T())
			z := zs[l-1]
			prev.Apply(func(i, j int, v float64) float64 {
				if z.At(i, j) <= 0 {
					return 0
				}
				return v
			}, prev)
		}

		r.adam(l, gradW, gradB)
		delta = prev
	}
	return loss
}

func (r *Regressor) adam(l int, gradW *mat.Dense, gradB []float64) {
	c1 := 1 - math.Pow(adamBeta1, float64(r.step))
	c2 := 1 - math.Pow(adamBeta2, float64(r.step))

	w, m, v := r.weights[l], r.mW[l], r.vW[l]
	rows, cols := w.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g := gradW.At(i, j)
			mi := adamBeta1*m.At(i, j) + (1-adamBeta1)*g
			vi := adamBeta2*v.At(i, j) + (1-adamBeta2)*g*g
			m.Set(i, j, mi)
			v.Set(i, j, vi)
			w.Set(i, j, w.At(i, j)-r.learningRate*(mi/c1)/(math.Sqrt(vi/c2)+adamEpsilon))
		}
	}

	bias, mb, vb := r.biases[l], r.mB[l], r.vB[l]
	for j, g := range gradB {
		mb[j] = adamBeta1*mb[j] + (1-adamBeta1)*g
		vb[j] = adamBeta2*vb[j] + (1-adamBeta2)*g*g
		bias[j] -= r.learningRate * (mb[j] / c1) / (math.Sqrt(vb[j]/c2) + adamEpsilon)
	}
}

// Predict runs inference on the given rows
func (r *Regressor) Predict(inputs [][]float64) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.trained {
		return nil, apperr.ErrNotFitted
	}
	if len(inputs) == 0 {
		return []float64{}, nil
	}

	x := mat.NewDense(len(inputs), r.inputDim, nil)
	for i, row := range inputs {
		if len(row) != r.inputDim {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", apperr.ErrInvalidInput, i, len(row), r.inputDim)
		}
		x.SetRow(i, row)
	}

	_, as := r.forward(x)
	out := as[len(as)-1]
	result := make([]float64, len(inputs))
	for i := range result {
		result[i] = out.At(i, 0)*r.yStd + r.yMean
	}
	return result, nil
}

// IsTrained returns whether the network has been trained
func (r *Regressor) IsTrained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trained
}

// Loss returns the mean training loss of the final epoch, in standardized
// target units
func (r *Regressor) Loss() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loss
}

// GetConfig returns the network architecture
func (r *Regressor) GetConfig() map[string]interface{} {
	return map[string]interface{}{
		"input_dim":   r.inputDim,
		"hidden_dims": append([]int(nil), r.hiddenDims...),
		"epochs":      r.epochs,
		"batch_size":  r.batchSize,
	}
}

type snapshot struct {
	InputDim   int
	HiddenDims []int
	Weights    [][]float64
	Biases     [][]float64
	YMean      float64
	YStd       float64
	Trained    bool
}

// Save writes the architecture and weights to disk
func (r *Regressor) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := snapshot{
		InputDim:   r.inputDim,
		HiddenDims: r.hiddenDims,
		Biases:     r.biases,
		YMean:      r.yMean,
		YStd:       r.yStd,
		Trained:    r.trained,
	}
	for _, w := range r.weights {
		data.Weights = append(data.Weights, append([]float64(nil), w.RawMatrix().Data...))
	}

	return gob.NewEncoder(f).Encode(data)
}

// Load restores a network written by Save
func (r *Regressor) Load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var data snapshot
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return err
	}

	r.inputDim = data.InputDim
	r.hiddenDims = data.HiddenDims
	r.initWeights()
	if len(data.Weights) != len(r.weights) || len(data.Biases) != len(r.biases) {
		return fmt.Errorf("%w: saved network has %d layers", apperr.ErrInvalidInput, len(data.Weights))
	}
	for l, w := range r.weights {
		rows, cols := w.Dims()
		if len(data.Weights[l]) != rows*cols {
			return fmt.Errorf("%w: layer %d has %d weights, expected %d", apperr.ErrInvalidInput, l, len(data.Weights[l]), rows*cols)
		}
		r.weights[l] = mat.NewDense(rows, cols, data.Weights[l])
		r.biases[l] = data.Biases[l]
	}
	r.yMean = data.YMean
	r.yStd = data.YStd
	r.trained = data.Trained

	return nil
}

func meanStd(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(values)))
	if std == 0 {
		std = 1
	}
	return mean, std
}
